// Package main provides the spinesight CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/born-ml/spinesight/internal/classifier"
	"github.com/born-ml/spinesight/internal/config"
	"github.com/born-ml/spinesight/internal/dicomio"
	"github.com/born-ml/spinesight/internal/logger"
	"github.com/born-ml/spinesight/internal/pipeline"
)

const version = "v0.1.0"

const usage = `spinesight - lumbar spine MRI severity grading with saliency overlays

Commands:
  classify   Grade one DICOM file or a directory of them
  synth      Write a synthetic 16-bit DICOM slice
  models     List the weight files the registry expects
  version    Show version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return nil
	}
	switch args[0] {
	case "classify":
		return runClassify(ctx, args[1:], stdout)
	case "synth":
		return runSynth(args[1:], stdout)
	case "models":
		return runModels(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "spinesight %s\n", version)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// setup parses fs, loads the configuration and initializes logging.
func setup(fs *pflag.FlagSet, args []string) (config.Config, error) {
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return config.Config{}, err
	}
	if err := logger.Init(cfg.AppName, cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runClassify(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("classify", pflag.ContinueOnError)
	arch := fs.String("arch", "alex", "backbone architecture (alex, res)")
	view := fs.String("view", "saggital1", "anatomical view (saggital1, axial, saggital2)")
	input := fs.String("input", "", "DICOM file to grade")
	inputDir := fs.String("input-dir", "", "directory of .dcm files to grade")
	overlayPath := fs.String("overlay", "", "write the saliency overlay PNG here (a directory with --input-dir)")
	asJSON := fs.Bool("json", false, "print predictions as JSON")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if (*input == "") == (*inputDir == "") {
		return errors.New("classify: exactly one of --input or --input-dir is required")
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if *input != "" {
		res, err := p.ProcessImage(ctx, *arch, *view, *input)
		if err != nil {
			return err
		}
		if *overlayPath != "" {
			if err := res.Overlay.WritePNG(*overlayPath); err != nil {
				return err
			}
			log.Info().Str("path", *overlayPath).Msg("overlay written")
		}
		return printPredictions(stdout, res, *asJSON)
	}

	results, err := p.ProcessDirectory(ctx, *arch, *view, *inputDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	if *overlayPath != "" {
		if err := os.MkdirAll(*overlayPath, 0o755); err != nil {
			return err
		}
		for _, name := range names {
			out := filepath.Join(*overlayPath, strings.TrimSuffix(name, ".dcm")+".png")
			if err := results[name].Overlay.WritePNG(out); err != nil {
				return err
			}
		}
	}

	if *asJSON {
		batch := make(map[string]classifier.PredictionResult, len(results))
		for name, res := range results {
			batch[name] = res.Predictions
		}
		return writeJSON(stdout, batch)
	}
	for _, name := range names {
		fmt.Fprintf(stdout, "File: %s\n", name)
		if err := printPredictions(stdout, results[name], false); err != nil {
			return err
		}
	}
	return nil
}

func printPredictions(w io.Writer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res.Predictions)
	}
	fmt.Fprint(w, classifier.Format(res.Predictions))
	if res.Degenerate {
		fmt.Fprintln(w, "saliency: flat gradient, overlay carries no highlight")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSynth(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("synth", pflag.ContinueOnError)
	out := fs.String("out", "synthetic.dcm", "output DICOM path")
	width := fs.Int("width", 512, "image width")
	height := fs.Int("height", 512, "image height")
	maxValue := fs.Uint16("max-value", 4095, "largest stored sample")
	if _, err := setup(fs, args); err != nil {
		return err
	}
	if err := dicomio.WriteSynthetic(*out, *width, *height, dicomio.SyntheticOptions{MaxValue: *maxValue}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %dx%d slice to %s\n", *width, *height, *out)
	return nil
}

func runModels(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("models", pflag.ContinueOnError)
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCH\tVIEW\tPRESENT\tPATH")
	for _, e := range p.Registry().Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.Architecture, e.View, e.Exists, e.Path)
	}
	return tw.Flush()
}
