package backbone

import (
	"os"
	"path/filepath"
)

// weightFiles maps every supported (architecture, view) pair to its artifact
// name. The names are those of the published checkpoints.
var weightFiles = map[Architecture]map[View]string{
	AlexNet: {
		SagittalT1: "alexnet_saggitalt1_model.safetensors",
		AxialT2:    "alexnet_axial_t2_model.safetensors",
		SagittalT2: "alexnet_sagittal_t2.safetensors",
	},
	ResNet18: {
		SagittalT1: "resnet_saggitalt1_model.safetensors",
		AxialT2:    "resnet_axial_t2_model.safetensors",
		SagittalT2: "resnet_sagittal_t2.safetensors",
	},
}

// compressedSuffix marks a zstd-compressed artifact.
const compressedSuffix = ".zst"

// Registry resolves model specs to backbones and weight files under a
// models directory.
type Registry struct {
	modelsDir string
	overrides map[Architecture]Backbone
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBackbone makes the registry hand out bb for bb.Architecture() in place
// of the built-in network. Weight file names are unchanged.
func WithBackbone(bb Backbone) RegistryOption {
	return func(r *Registry) {
		r.overrides[bb.Architecture()] = bb
	}
}

// NewRegistry creates a registry rooted at modelsDir.
func NewRegistry(modelsDir string, opts ...RegistryOption) *Registry {
	r := &Registry{modelsDir: modelsDir, overrides: make(map[Architecture]Backbone)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the models directory.
func (r *Registry) Dir() string {
	return r.modelsDir
}

// Resolve validates an (architecture, view) pair and returns its backbone and
// weights path. Both tags are validated before the filesystem is touched.
// When the plain artifact is absent but a ".zst" sibling exists, the sibling
// is returned. Existence is otherwise not checked; loading reports it.
func (r *Registry) Resolve(arch, view string) (Backbone, string, error) {
	a, err := ParseArchitecture(arch)
	if err != nil {
		return nil, "", err
	}
	v, err := ParseView(view)
	if err != nil {
		return nil, "", err
	}
	bb, ok := r.overrides[a]
	if !ok {
		if bb, err = For(a); err != nil {
			return nil, "", err
		}
	}
	return bb, r.weightsPath(a, v), nil
}

func (r *Registry) weightsPath(a Architecture, v View) string {
	path := filepath.Join(r.modelsDir, weightFiles[a][v])
	if _, err := os.Stat(path); err != nil {
		if _, zerr := os.Stat(path + compressedSuffix); zerr == nil {
			return path + compressedSuffix
		}
	}
	return path
}

// Entry describes one registry row.
type Entry struct {
	Architecture Architecture
	View         View
	Path         string
	Exists       bool
}

// Entries lists every supported pair with its resolved artifact path.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, 6)
	for _, a := range []Architecture{AlexNet, ResNet18} {
		for _, v := range Views {
			path := r.weightsPath(a, v)
			_, err := os.Stat(path)
			entries = append(entries, Entry{Architecture: a, View: v, Path: path, Exists: err == nil})
		}
	}
	return entries
}

// FileName returns the plain artifact name for a pair.
func FileName(a Architecture, v View) string {
	return weightFiles[a][v]
}
