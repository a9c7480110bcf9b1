// Package pipeline chains the loader, preprocessor, classifier, saliency
// engine and overlay renderer into one request per DICOM file.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/backend"
	"github.com/born-ml/spinesight/internal/classifier"
	"github.com/born-ml/spinesight/internal/config"
	"github.com/born-ml/spinesight/internal/dicomio"
	"github.com/born-ml/spinesight/internal/metric"
	"github.com/born-ml/spinesight/internal/overlay"
	"github.com/born-ml/spinesight/internal/parallel"
	"github.com/born-ml/spinesight/internal/preprocess"
	"github.com/born-ml/spinesight/internal/saliency"
	"github.com/born-ml/spinesight/internal/tensor"
)

// Result is the outcome of a completed request. It is only returned whole.
type Result struct {
	Predictions classifier.PredictionResult
	Overlay     *overlay.Image
	// Degenerate reports that the saliency map was flat and the overlay
	// carries no tint.
	Degenerate bool
}

// Pipeline is safe for concurrent use. Loaded models are shared between
// requests; gradient state is per request.
type Pipeline struct {
	registry *backbone.Registry
	backend  tensor.Backend
	models   *modelCache
	metrics  *metric.Client
	observer func(Stage)
	batch    parallel.Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry replaces the registry built from the configured models dir.
func WithRegistry(r *backbone.Registry) Option {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// WithMetrics replaces the metrics client built from the configuration.
func WithMetrics(m *metric.Client) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithObserver registers fn to be called on every stage transition of every
// request. fn must be safe for concurrent use.
func WithObserver(fn func(Stage)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// New builds a pipeline from cfg.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	b, err := backend.Select(cfg.Device)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		registry: backbone.NewRegistry(cfg.ModelsDir),
		backend:  b,
		batch:    parallel.Config{Workers: cfg.Workers},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		if cfg.MetricsEnabled {
			if p.metrics, err = metric.New(cfg.MetricsAddress, cfg.AppName, cfg.MetricsSamplingRate); err != nil {
				return nil, fmt.Errorf("pipeline: metrics: %w", err)
			}
		} else {
			p.metrics = metric.NoOp()
		}
	}
	if p.models, err = newModelCache(cfg.ModelCacheBytes, b, p.metrics); err != nil {
		return nil, err
	}
	log.Info().Str("backend", b.Name()).Str("models", p.registry.Dir()).Msg("pipeline ready")
	return p, nil
}

// Registry returns the registry used to resolve models.
func (p *Pipeline) Registry() *backbone.Registry {
	return p.registry
}

// Close releases the model cache and flushes metrics.
func (p *Pipeline) Close() error {
	p.models.close()
	return p.metrics.Close()
}

// ProcessImage runs the whole chain on one DICOM file. arch and view are
// validated before any file is read. ctx is checked between stages only.
func (p *Pipeline) ProcessImage(ctx context.Context, arch, view, path string) (*Result, error) {
	r := p.begin(arch, view)
	bb, weights, err := p.registry.Resolve(arch, view)
	if err != nil {
		return nil, r.fail(StageIdle, err)
	}

	raw, input, err := r.prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	var (
		clf   *classifier.Classifier
		preds classifier.PredictionResult
		smap  *saliency.Map
		img   *overlay.Image
	)
	if err := r.step(ctx, StageClassifying, func() (err error) {
		if clf, err = p.models.get(bb, weights); err != nil {
			return err
		}
		probs, err := clf.Classify(input)
		if err != nil {
			return err
		}
		preds = classifier.Predictions(probs)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := r.step(ctx, StageExplaining, func() (err error) {
		smap, err = saliency.Explain(clf, input)
		return err
	}); err != nil {
		return nil, err
	}
	if err := r.step(ctx, StageRendering, func() (err error) {
		img, err = overlay.Render(smap, raw)
		return err
	}); err != nil {
		return nil, err
	}

	r.done()
	return &Result{Predictions: preds, Overlay: img, Degenerate: smap.Degenerate}, nil
}

// Classify loads, preprocesses and classifies one file without computing a
// saliency map.
func (p *Pipeline) Classify(ctx context.Context, arch, view, path string) (classifier.PredictionResult, error) {
	r := p.begin(arch, view)
	bb, weights, err := p.registry.Resolve(arch, view)
	if err != nil {
		return nil, r.fail(StageIdle, err)
	}

	_, input, err := r.prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	var preds classifier.PredictionResult
	if err := r.step(ctx, StageClassifying, func() error {
		clf, err := p.models.get(bb, weights)
		if err != nil {
			return err
		}
		probs, err := clf.Classify(input)
		if err != nil {
			return err
		}
		preds = classifier.Predictions(probs)
		return nil
	}); err != nil {
		return nil, err
	}

	r.done()
	return preds, nil
}

// Explain computes the saliency map of one file at the 224x224 model
// resolution.
func (p *Pipeline) Explain(ctx context.Context, arch, view, path string) (*saliency.Map, error) {
	r := p.begin(arch, view)
	bb, weights, err := p.registry.Resolve(arch, view)
	if err != nil {
		return nil, r.fail(StageIdle, err)
	}

	_, input, err := r.prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	var smap *saliency.Map
	if err := r.step(ctx, StageExplaining, func() error {
		clf, err := p.models.get(bb, weights)
		if err != nil {
			return err
		}
		smap, err = saliency.Explain(clf, input)
		return err
	}); err != nil {
		return nil, err
	}

	r.done()
	return smap, nil
}

// ProcessDirectory runs ProcessImage on every ".dcm" file directly inside
// dir and returns the results keyed by file name. Up to the configured
// number of workers run at once. If any file fails, the error of the first
// failing file in name order is returned and no results are.
func (p *Pipeline) ProcessDirectory(ctx context.Context, arch, view, dir string) (map[string]*Result, error) {
	if _, _, err := p.registry.Resolve(arch, view); err != nil {
		return nil, p.begin(arch, view).fail(StageIdle, err)
	}
	names, err := dicomFiles(dir)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, len(names))
	err = parallel.ForErr(len(names), func(i int) error {
		res, err := p.ProcessImage(ctx, arch, view, filepath.Join(dir, names[i]))
		if err != nil {
			return fmt.Errorf("%s: %w", names[i], err)
		}
		out[i] = res
		return nil
	}, p.batch)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*Result, len(names))
	for i, name := range names {
		results[name] = out[i]
	}
	return results, nil
}

func dicomFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".dcm") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// request tracks the state machine of one call.
type request struct {
	p     *Pipeline
	stage Stage
	tags  []string
	start time.Time
}

func (p *Pipeline) begin(arch, view string) *request {
	return &request{
		p:     p,
		stage: StageIdle,
		tags: metric.BuildTag(
			metric.NewTag(metric.TagArchitecture, arch),
			metric.NewTag(metric.TagView, view),
		),
		start: time.Now(),
	}
}

func (r *request) transition(s Stage) {
	log.Debug().Stringer("from", r.stage).Stringer("to", s).Msg("stage transition")
	r.stage = s
	if r.p.observer != nil {
		r.p.observer(s)
	}
}

// step enters s and runs fn. A cancelled ctx fails the request before s is
// entered.
func (r *request) step(ctx context.Context, s Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return r.fail(s, err)
	}
	r.transition(s)
	start := time.Now()
	err := fn()
	r.p.metrics.Timing(metric.PipelineStageLatency, time.Since(start),
		append(r.stageTags(s), metric.TagAsString(metric.TagOutcome, outcome(err))))
	if err != nil {
		return r.fail(s, err)
	}
	return nil
}

// prepare runs the loading and preprocessing stages.
func (r *request) prepare(ctx context.Context, path string) (*dicomio.RawImage, *tensor.Tensor, error) {
	var (
		raw   *dicomio.RawImage
		input *tensor.Tensor
	)
	if err := r.step(ctx, StageLoading, func() (err error) {
		raw, err = dicomio.Load(path)
		return err
	}); err != nil {
		return nil, nil, err
	}
	if err := r.step(ctx, StagePreprocessing, func() (err error) {
		input, err = preprocess.Preprocess(raw)
		return err
	}); err != nil {
		return nil, nil, err
	}
	return raw, input, nil
}

func (r *request) fail(s Stage, err error) error {
	r.transition(StageFailed)
	r.p.metrics.Incr(metric.PipelineRequestCount,
		append(r.stageTags(s), metric.TagAsString(metric.TagOutcome, metric.TagValueFailure)))
	log.Error().Err(err).Stringer("stage", s).Msg("request failed")
	return &StageError{Stage: s, Err: err}
}

func (r *request) done() {
	r.transition(StageDone)
	r.p.metrics.Incr(metric.PipelineRequestCount,
		append(r.stageTags(StageDone), metric.TagAsString(metric.TagOutcome, metric.TagValueSuccess)))
	log.Debug().Dur("elapsed", time.Since(r.start)).Msg("request done")
}

func (r *request) stageTags(s Stage) []string {
	tags := make([]string, 0, len(r.tags)+2)
	tags = append(tags, r.tags...)
	return append(tags, metric.TagAsString(metric.TagStage, s.String()))
}

func outcome(err error) string {
	if err != nil {
		return metric.TagValueFailure
	}
	return metric.TagValueSuccess
}
