package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spinesight/internal/apperr"
	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/backbone/backbonetest"
	"github.com/born-ml/spinesight/internal/config"
	"github.com/born-ml/spinesight/internal/dicomio"
	"github.com/born-ml/spinesight/internal/metric"
	"github.com/born-ml/spinesight/internal/parallel"
)

type stageRecorder struct {
	mu     sync.Mutex
	stages []Stage
}

func (r *stageRecorder) observe(s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

func (r *stageRecorder) seen() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stage(nil), r.stages...)
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *countingSink) Timing(string, time.Duration, []string, float64) error { return nil }

func (s *countingSink) Count(name string, value int64, tags []string, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[name+"|"+strings.Join(tags, ",")] += int(value)
	return nil
}

func (s *countingSink) Close() error { return nil }

func (s *countingSink) count(name, tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for k, v := range s.counts {
		if strings.HasPrefix(k, name+"|") && strings.Contains(k, tag) {
			total += v
		}
	}
	return total
}

// fixture is a models directory holding tiny ResNet18 stand-in weights for
// the axial view, plus a directory of synthetic scans.
type fixture struct {
	modelsDir string
	scanDir   string
	recorder  *stageRecorder
	sink      *countingSink
	pipeline  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		modelsDir: t.TempDir(),
		scanDir:   t.TempDir(),
		recorder:  &stageRecorder{},
		sink:      &countingSink{},
	}
	bb := backbonetest.Tiny{}
	backbonetest.WriteWeights(t, bb, 7, f.modelsDir, backbone.FileName(backbone.ResNet18, backbone.AxialT2))

	cfg := config.Default()
	cfg.ModelsDir = f.modelsDir
	p, err := New(cfg,
		WithRegistry(backbone.NewRegistry(f.modelsDir, backbone.WithBackbone(bb))),
		WithMetrics(metric.WithSink(f.sink, 1)),
		WithObserver(f.recorder.observe),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	f.pipeline = p
	return f
}

func (f *fixture) scan(t *testing.T, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(f.scanDir, name)
	require.NoError(t, dicomio.WriteSynthetic(path, width, height, dicomio.SyntheticOptions{}))
	return path
}

func TestProcessImage(t *testing.T) {
	f := newFixture(t)
	path := f.scan(t, "slice.dcm", 96, 80)

	res, err := f.pipeline.ProcessImage(context.Background(), "res", "axial", path)
	require.NoError(t, err)

	require.Len(t, res.Predictions, backbone.NumLevels)
	for _, level := range backbone.Levels {
		pred, ok := res.Predictions[level]
		require.True(t, ok, level)
		assert.GreaterOrEqual(t, pred.Confidence, 0.0)
		assert.LessOrEqual(t, pred.Confidence, 1.0)
		assert.Contains(t, backbone.Classes[:], pred.Class)
	}

	require.NotNil(t, res.Overlay)
	assert.Equal(t, 96, res.Overlay.Width)
	assert.Equal(t, 80, res.Overlay.Height)
	assert.Len(t, res.Overlay.Pix, 96*80*3)
	for _, v := range res.Overlay.Pix {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}

	assert.Equal(t, []Stage{
		StageLoading, StagePreprocessing, StageClassifying,
		StageExplaining, StageRendering, StageDone,
	}, f.recorder.seen())
	assert.Equal(t, 1, f.sink.count(metric.PipelineRequestCount, "outcome:success"))
}

func TestProcessImage_Deterministic(t *testing.T) {
	f := newFixture(t)
	path := f.scan(t, "slice.dcm", 64, 64)

	first, err := f.pipeline.ProcessImage(context.Background(), "res", "axial", path)
	require.NoError(t, err)
	second, err := f.pipeline.ProcessImage(context.Background(), "res", "axial", path)
	require.NoError(t, err)

	assert.Equal(t, first.Predictions, second.Predictions)
	assert.Equal(t, first.Degenerate, second.Degenerate)
	assert.Equal(t, first.Overlay.Pix, second.Overlay.Pix)

	// The second request is served from the model cache.
	assert.Equal(t, 1, f.sink.count(metric.ModelCacheCount, "outcome:miss"))
}

func TestProcessImage_Concurrent(t *testing.T) {
	f := newFixture(t)
	path := f.scan(t, "slice.dcm", 64, 48)

	want, err := f.pipeline.ProcessImage(context.Background(), "res", "axial", path)
	require.NoError(t, err)

	const workers = 4
	results := make([]*Result, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.pipeline.ProcessImage(context.Background(), "res", "axial", path)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Predictions, results[i].Predictions)
		assert.Equal(t, want.Overlay.Pix, results[i].Overlay.Pix)
	}
}

func TestProcessImage_Errors(t *testing.T) {
	f := newFixture(t)
	good := f.scan(t, "slice.dcm", 32, 32)
	garbage := filepath.Join(f.scanDir, "garbage.dcm")
	require.NoError(t, os.WriteFile(garbage, []byte("not a dicom file"), 0o600))
	missing := filepath.Join(f.scanDir, "absent.dcm")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		arch  string
		view  string
		path  string
		kind  error
		stage Stage
	}{
		{"bad architecture", context.Background(), "xyz", "axial", missing, apperr.ErrInvalidArchitecture, StageIdle},
		{"bad view", context.Background(), "res", "coronal", missing, apperr.ErrInvalidView, StageIdle},
		{"missing file", context.Background(), "res", "axial", missing, apperr.ErrDecode, StageLoading},
		{"corrupt file", context.Background(), "res", "axial", garbage, apperr.ErrDecode, StageLoading},
		{"missing weights", context.Background(), "res", "saggital1", good, apperr.ErrModelLoad, StageClassifying},
		{"cancelled", cancelled, "res", "axial", good, context.Canceled, StageLoading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.pipeline.ProcessImage(tt.ctx, tt.arch, tt.view, tt.path)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.kind)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.stage, se.Stage)
			stage, ok := FailedStage(err)
			assert.True(t, ok)
			assert.Equal(t, tt.stage, stage)

			seen := f.recorder.seen()
			assert.Equal(t, StageFailed, seen[len(seen)-1])
		})
	}
}

func TestClassifyAndExplain(t *testing.T) {
	f := newFixture(t)
	path := f.scan(t, "slice.dcm", 48, 64)

	preds, err := f.pipeline.Classify(context.Background(), "res", "axial", path)
	require.NoError(t, err)
	assert.Len(t, preds, backbone.NumLevels)

	full, err := f.pipeline.ProcessImage(context.Background(), "res", "axial", path)
	require.NoError(t, err)
	assert.Equal(t, full.Predictions, preds)

	m, err := f.pipeline.Explain(context.Background(), "res", "axial", path)
	require.NoError(t, err)
	assert.Equal(t, 224, m.Width)
	assert.Equal(t, 224, m.Height)
	if !m.Degenerate {
		assert.InDelta(t, 0.0, m.Min(), 1e-12)
		assert.InDelta(t, 1.0, m.Max(), 1e-12)
	}

	_, err = f.pipeline.Classify(context.Background(), "alex", "sideways", path)
	assert.ErrorIs(t, err, apperr.ErrInvalidView)
}

func TestProcessDirectory(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "a.dcm", 32, 32)
	f.scan(t, "b.dcm", 40, 24)
	require.NoError(t, os.WriteFile(filepath.Join(f.scanDir, "notes.txt"), []byte("skip"), 0o600))

	results, err := f.pipeline.ProcessDirectory(context.Background(), "res", "axial", f.scanDir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results, "a.dcm")
	assert.Contains(t, results, "b.dcm")
	assert.Equal(t, 40, results["b.dcm"].Overlay.Width)
	assert.Equal(t, 24, results["b.dcm"].Overlay.Height)
}

func TestProcessDirectory_Workers(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.dcm", "b.dcm", "c.dcm", "d.dcm"} {
		f.scan(t, name, 32, 40)
	}
	sequential, err := f.pipeline.ProcessDirectory(context.Background(), "res", "axial", f.scanDir)
	require.NoError(t, err)

	f.pipeline.batch = parallel.Config{Workers: 3}
	concurrent, err := f.pipeline.ProcessDirectory(context.Background(), "res", "axial", f.scanDir)
	require.NoError(t, err)

	require.Len(t, concurrent, 4)
	for name, res := range sequential {
		assert.Equal(t, res.Predictions, concurrent[name].Predictions, name)
		assert.Equal(t, res.Overlay.Pix, concurrent[name].Overlay.Pix, name)
	}
}

func TestProcessDirectory_FailsWhole(t *testing.T) {
	f := newFixture(t)
	f.scan(t, "a.dcm", 32, 32)
	require.NoError(t, os.WriteFile(filepath.Join(f.scanDir, "b.dcm"), []byte("broken"), 0o600))

	results, err := f.pipeline.ProcessDirectory(context.Background(), "res", "axial", f.scanDir)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, apperr.ErrDecode)
	assert.Contains(t, err.Error(), "b.dcm")

	_, err = f.pipeline.ProcessDirectory(context.Background(), "vgg", "axial", f.scanDir)
	assert.ErrorIs(t, err, apperr.ErrInvalidArchitecture)
}

func TestProcessDirectory_InvalidTagsAreRecorded(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.ProcessDirectory(context.Background(), "res", "coronal", f.scanDir)
	require.ErrorIs(t, err, apperr.ErrInvalidView)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageIdle, stage)
	assert.Equal(t, []Stage{StageFailed}, f.recorder.seen())
	assert.Equal(t, 1, f.sink.count(metric.PipelineRequestCount, "outcome:failure"))
}

func TestModelCache_CountsEveryLookup(t *testing.T) {
	f := newFixture(t)
	bb, weights, err := f.pipeline.Registry().Resolve("res", "axial")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pipeline.models.get(bb, weights)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	misses := f.sink.count(metric.ModelCacheCount, "outcome:miss")
	hits := f.sink.count(metric.ModelCacheCount, "outcome:hit")
	assert.Equal(t, 1, misses)
	assert.Equal(t, callers-1, hits)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "explaining", StageExplaining.String())
	assert.Equal(t, "error", StageFailed.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}

// TestProcessImage_AlexNetEndToEnd runs the full-size AlexNet backbone on a
// 512x512 16-bit scan.
func TestProcessImage_AlexNetEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full AlexNet forward and five backward passes")
	}
	modelsDir := t.TempDir()
	bb, err := backbone.For(backbone.AlexNet)
	require.NoError(t, err)
	backbonetest.WriteWeights(t, bb, 3, modelsDir, backbone.FileName(backbone.AlexNet, backbone.SagittalT1))

	path := filepath.Join(t.TempDir(), "slice.dcm")
	require.NoError(t, dicomio.WriteSynthetic(path, 512, 512, dicomio.SyntheticOptions{MaxValue: 65535}))

	cfg := config.Default()
	cfg.ModelsDir = modelsDir
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	res, err := p.ProcessImage(context.Background(), "alex", "saggital1", path)
	require.NoError(t, err)

	require.Len(t, res.Predictions, backbone.NumLevels)
	for _, level := range backbone.Levels {
		pred := res.Predictions[level]
		assert.GreaterOrEqual(t, pred.Confidence, 0.0)
		assert.LessOrEqual(t, pred.Confidence, 1.0)
	}
	assert.Equal(t, 512, res.Overlay.Width)
	assert.Equal(t, 512, res.Overlay.Height)
	assert.Len(t, res.Overlay.Pix, 512*512*3)
}
