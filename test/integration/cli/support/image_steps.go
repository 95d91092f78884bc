package support

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

type shapeJSON struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type imageResultJSON struct {
	Source string      `json:"source"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Shapes []shapeJSON `json:"shapes"`
}

// imageResults decodes stdout as one image result or a list of them.
func (testCtx *TestContext) imageResults() ([]imageResultJSON, error) {
	out := strings.TrimSpace(testCtx.LastStdout)
	if strings.HasPrefix(out, "[") {
		var list []imageResultJSON
		if err := json.Unmarshal([]byte(out), &list); err != nil {
			return nil, fmt.Errorf("output is not a JSON result list: %w\nOutput: %s", err, out)
		}
		return list, nil
	}
	var single imageResultJSON
	if err := json.Unmarshal([]byte(out), &single); err != nil {
		return nil, fmt.Errorf("output is not a JSON result: %w\nOutput: %s", err, out)
	}
	return []imageResultJSON{single}, nil
}

func (testCtx *TestContext) allShapes() ([]shapeJSON, error) {
	results, err := testCtx.imageResults()
	if err != nil {
		return nil, err
	}
	var shapes []shapeJSON
	for _, r := range results {
		shapes = append(shapes, r.Shapes...)
	}
	return shapes, nil
}

func splitList(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// theDetectedShapeTypesShouldBe compares the multiset of detected types,
// ignoring order.
func (testCtx *TestContext) theDetectedShapeTypesShouldBe(list string) error {
	shapes, err := testCtx.allShapes()
	if err != nil {
		return err
	}
	got := make([]string, 0, len(shapes))
	for _, s := range shapes {
		got = append(got, s.Type)
	}
	want := splitList(list)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return fmt.Errorf("detected %v, want %v", got, want)
	}
	return nil
}

func (testCtx *TestContext) shapesShouldBeDetected(n int) error {
	shapes, err := testCtx.allShapes()
	if err != nil {
		return err
	}
	if len(shapes) != n {
		return fmt.Errorf("detected %d shapes, want %d\nOutput: %s", len(shapes), n, testCtx.LastStdout)
	}
	return nil
}

func (testCtx *TestContext) everyConfidenceShouldBeAtLeast(minStr string) error {
	minConf, err := strconv.ParseFloat(minStr, 64)
	if err != nil {
		return err
	}
	shapes, err := testCtx.allShapes()
	if err != nil {
		return err
	}
	for _, s := range shapes {
		if s.Confidence < minConf || s.Confidence > 1 {
			return fmt.Errorf("%s confidence %g outside [%g, 1]", s.Type, s.Confidence, minConf)
		}
	}
	return nil
}

func (testCtx *TestContext) theResultShouldHaveSize(width, height int) error {
	results, err := testCtx.imageResults()
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Width != width || r.Height != height {
			return fmt.Errorf("%s is %dx%d, want %dx%d", r.Source, r.Width, r.Height, width, height)
		}
	}
	return nil
}

// theCSVOutputShouldHaveRows checks the header and the number of data rows.
func (testCtx *TestContext) theCSVOutputShouldHaveRows(n int) error {
	rows, err := csv.NewReader(strings.NewReader(testCtx.LastStdout)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(rows) == 0 || rows[0][0] != "source" {
		return fmt.Errorf("CSV header missing\nOutput: %s", testCtx.LastStdout)
	}
	if got := len(rows) - 1; got != n {
		return fmt.Errorf("CSV has %d data rows, want %d", got, n)
	}
	return nil
}

func (testCtx *TestContext) anOverlayImageShouldExistFor(dir, stem string) error {
	path := filepath.Join(testCtx.Path(dir), stem+"_overlay.png")
	f, err := os.Open(path) //nolint:gosec // G304: scenario temp file
	if err != nil {
		return fmt.Errorf("overlay not written: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := png.DecodeConfig(f); err != nil {
		return fmt.Errorf("overlay %s is not a PNG: %w", path, err)
	}
	return nil
}

func (testCtx *TestContext) theBatchSummaryShouldReport(images, shapes int) error {
	var doc struct {
		Summary struct {
			Images int `json:"images"`
			Shapes int `json:"shapes"`
		} `json:"summary"`
	}
	if err := testCtx.stdoutJSON(&doc); err != nil {
		return err
	}
	if doc.Summary.Images != images || doc.Summary.Shapes != shapes {
		return fmt.Errorf("summary reports %d images and %d shapes, want %d and %d",
			doc.Summary.Images, doc.Summary.Shapes, images, shapes)
	}
	return nil
}

// RegisterImageSteps registers image detection step definitions.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detected shape types should be "([^"]*)"$`, testCtx.theDetectedShapeTypesShouldBe)
	sc.Step(`^(\d+) shapes? should be detected$`, testCtx.shapesShouldBeDetected)
	sc.Step(`^every confidence should be at least ([0-9.]+)$`, testCtx.everyConfidenceShouldBeAtLeast)
	sc.Step(`^every result should be (\d+)x(\d+)$`, testCtx.theResultShouldHaveSize)
	sc.Step(`^the CSV output should have (\d+) data rows?$`, testCtx.theCSVOutputShouldHaveRows)
	sc.Step(`^the batch summary should report (\d+) images and (\d+) shapes$`, testCtx.theBatchSummaryShouldReport)
	sc.Step(`^an overlay image should exist in "([^"]*)" for "([^"]*)"$`, testCtx.anOverlayImageShouldExistFor)
}
