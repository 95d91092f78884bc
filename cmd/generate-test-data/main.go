package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

// sceneFixture records which shapes a generated image contains.
type sceneFixture struct {
	Name      string   `json:"name"`
	InputFile string   `json:"inputFile"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Expected  []string `json:"expectedTypes"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages   = flag.Bool("images", true, "Generate synthetic shape images")
		generatePDF      = flag.Bool("pdf", true, "Generate a PDF with one scene per page")
		generateFixtures = flag.Bool("fixtures", true, "Generate expected-result fixtures")
		outDir           = flag.String("out", "", "Output directory (default is <project root>/testdata)")
		verbose          = flag.Bool("v", false, "Verbose output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic shape scenes for shapedetect testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                    # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pdf=false         # Skip the PDF\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -out /tmp/shapes   # Write somewhere else\n", os.Args[0])
	}
	flag.Parse()

	dir := *outDir
	if dir == "" {
		var err error
		dir, err = testutil.TestDataDir()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
	}
	if *verbose {
		slog.Info("Options", "images", *generateImages, "pdf", *generatePDF, "fixtures", *generateFixtures, "out", dir)
	}

	scenes := append([]testutil.Scene{testutil.MixedScene(), testutil.BlankScene()}, testutil.SingleShapeScenes()...)

	if *generateImages {
		if err := generateSceneImages(filepath.Join(dir, "images"), scenes); err != nil {
			slog.Error("Failed to generate images", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated scene images", "count", len(scenes))
	}

	if *generatePDF {
		path, err := testutil.BuildScenePDF(filepath.Join(dir, "documents"), "shapes.pdf", scenes...)
		if err != nil {
			slog.Error("Failed to generate PDF", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated PDF", "path", path, "pages", len(scenes))
	}

	if *generateFixtures {
		if err := generateSceneFixtures(filepath.Join(dir, "fixtures"), scenes); err != nil {
			slog.Error("Failed to generate fixtures", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated fixtures", "count", len(scenes))
	}

	slog.Info("Test data generation completed")
}

func generateSceneImages(dir string, scenes []testutil.Scene) error {
	for _, s := range scenes {
		path, err := s.WriteFile(dir)
		if err != nil {
			return fmt.Errorf("failed to write scene %s: %w", s.Name, err)
		}
		slog.Debug("Wrote scene", "path", path)
	}
	return nil
}

func generateSceneFixtures(dir string, scenes []testutil.Scene) error {
	if err := testutil.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create fixtures directory: %w", err)
	}
	for _, s := range scenes {
		fx := sceneFixture{
			Name:      s.Name,
			InputFile: filepath.Join("images", s.Name+".png"),
			Width:     s.Width,
			Height:    s.Height,
			Expected:  s.ExpectedTypes(),
		}
		data, err := json.MarshalIndent(fx, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, s.Name+".json"), data, 0o600); err != nil {
			return fmt.Errorf("failed to save fixture '%s': %w", s.Name, err)
		}
	}
	return nil
}
