package support

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

type pdfResultJSON struct {
	Filename   string `json:"filename"`
	TotalPages int    `json:"totalPages"`
	Pages      []struct {
		PageNumber int               `json:"pageNumber"`
		Images     []imageResultJSON `json:"images"`
		ShapeCount int               `json:"shapeCount"`
	} `json:"pages"`
}

// buildPDF writes a PDF with one page per comma-separated scene name.
func (testCtx *TestContext) buildPDF(name, names string) (string, error) {
	var scenes []testutil.Scene
	for _, n := range splitList(names) {
		s, err := sceneByName(n)
		if err != nil {
			return "", err
		}
		scenes = append(scenes, s)
	}
	if len(scenes) == 0 {
		return "", fmt.Errorf("no scenes given for %s", name)
	}
	return testutil.BuildScenePDF(testCtx.TempDir, name, scenes...)
}

func (testCtx *TestContext) aPDFWithScenes(name, names string) error {
	_, err := testCtx.buildPDF(name, names)
	return err
}

func (testCtx *TestContext) pdfResult() (*pdfResultJSON, error) {
	var res pdfResultJSON
	if err := testCtx.stdoutJSON(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (testCtx *TestContext) theDocumentShouldHaveTotalPages(n int) error {
	res, err := testCtx.pdfResult()
	if err != nil {
		return err
	}
	if res.TotalPages != n {
		return fmt.Errorf("totalPages = %d, want %d", res.TotalPages, n)
	}
	return nil
}

func (testCtx *TestContext) theResultShouldListPages(n int) error {
	res, err := testCtx.pdfResult()
	if err != nil {
		return err
	}
	if len(res.Pages) != n {
		return fmt.Errorf("result lists %d pages, want %d", len(res.Pages), n)
	}
	return nil
}

// pageShouldContain checks that page contains a shape of the given type.
func (testCtx *TestContext) pageShouldContain(page int, shapeType string) error {
	res, err := testCtx.pdfResult()
	if err != nil {
		return err
	}
	for _, p := range res.Pages {
		if p.PageNumber != page {
			continue
		}
		var types []string
		for _, img := range p.Images {
			for _, s := range img.Shapes {
				types = append(types, s.Type)
			}
		}
		if !slices.Contains(types, shapeType) {
			return fmt.Errorf("page %d has %v, want a %s", page, types, shapeType)
		}
		return nil
	}
	return fmt.Errorf("page %d not in result", page)
}

func (testCtx *TestContext) pageShouldHaveNoShapes(page int) error {
	res, err := testCtx.pdfResult()
	if err != nil {
		return err
	}
	for _, p := range res.Pages {
		if p.PageNumber == page {
			if p.ShapeCount != 0 {
				return fmt.Errorf("page %d has %d shapes", page, p.ShapeCount)
			}
			return nil
		}
	}
	return fmt.Errorf("page %d not in result", page)
}

func (testCtx *TestContext) theDocumentsShouldBeListed(n int) error {
	var docs []json.RawMessage
	if err := testCtx.stdoutJSON(&docs); err != nil {
		return err
	}
	if len(docs) != n {
		return fmt.Errorf("listed %d documents, want %d", len(docs), n)
	}
	return nil
}

// RegisterPDFSteps registers PDF processing step definitions.
func (testCtx *TestContext) RegisterPDFSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a PDF "([^"]*)" with the scenes "([^"]*)"$`, testCtx.aPDFWithScenes)
	sc.Step(`^the document should have (\d+) total pages?$`, testCtx.theDocumentShouldHaveTotalPages)
	sc.Step(`^the result should list (\d+) pages?$`, testCtx.theResultShouldListPages)
	sc.Step(`^page (\d+) should contain a "([^"]*)"$`, testCtx.pageShouldContain)
	sc.Step(`^page (\d+) should have no shapes$`, testCtx.pageShouldHaveNoShapes)
	sc.Step(`^(\d+) documents should be listed$`, testCtx.theDocumentsShouldBeListed)
}
