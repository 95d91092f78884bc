package support

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

const pngMagic = "\x89PNG\r\n\x1a\n"

var errNoServer = errors.New("server is not running")

func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startServer(0)
}

func (testCtx *TestContext) theServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startServer(perMinute)
}

func (testCtx *TestContext) startServer(perMinute int) error {
	testCtx.stopHTTPServer()
	srv, err := NewHTTPTestServer(perMinute)
	if err != nil {
		return err
	}
	testCtx.HTTPServer = srv
	return nil
}

func (testCtx *TestContext) recordResponse(resp *http.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	if testCtx.HTTPServer == nil {
		return errNoServer
	}
	return testCtx.recordResponse(testCtx.HTTPServer.Get(path))
}

// iPostTheSceneImageTo renders the named scene and uploads it as "image".
func (testCtx *TestContext) iPostTheSceneImageTo(name, path string) error {
	return testCtx.postScene(name, path, nil)
}

func (testCtx *TestContext) iPostTheSceneImageToWithFormat(name, path, format string) error {
	return testCtx.postScene(name, path, map[string]string{"format": format})
}

func (testCtx *TestContext) postScene(name, path string, values map[string]string) error {
	if testCtx.HTTPServer == nil {
		return errNoServer
	}
	scene, err := sceneByName(name)
	if err != nil {
		return err
	}
	file, err := scene.WriteFile(testCtx.Path("uploads"))
	if err != nil {
		return err
	}
	return testCtx.recordResponse(testCtx.HTTPServer.PostFile(path, "image", file, values))
}

// iPostAPDFOfScenesTo builds a PDF with one page per scene and uploads it as "pdf".
func (testCtx *TestContext) iPostAPDFOfScenesTo(names, path string) error {
	if testCtx.HTTPServer == nil {
		return errNoServer
	}
	file, err := testCtx.buildPDF("upload.pdf", names)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(testCtx.HTTPServer.PostFile(path, "pdf", file, nil))
}

func (testCtx *TestContext) iPostTheFileTo(name, field, path string) error {
	if testCtx.HTTPServer == nil {
		return errNoServer
	}
	return testCtx.recordResponse(testCtx.HTTPServer.PostFile(path, field, testCtx.Path(name), nil))
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("header %s = %q, want %q", name, got, value)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldContain(name, value string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; !strings.Contains(got, value) {
		return fmt.Errorf("header %s = %q, want it to contain %q", name, got, value)
	}
	return nil
}

// theResponseSummaryShouldReportShapes checks summary.shapes of a detect response.
func (testCtx *TestContext) theResponseSummaryShouldReportShapes(n int) error {
	var resp struct {
		Success bool `json:"success"`
		Summary *struct {
			Shapes int `json:"shapes"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &resp); err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	if !resp.Success || resp.Summary == nil {
		return fmt.Errorf("response is not a successful detection: %s", testCtx.LastHTTPResponse)
	}
	if resp.Summary.Shapes != n {
		return fmt.Errorf("expected %d shapes, got %d", n, resp.Summary.Shapes)
	}
	return nil
}

func (testCtx *TestContext) theResponseBodyShouldBeAPNG() error {
	if !strings.HasPrefix(testCtx.LastHTTPResponse, pngMagic) {
		return fmt.Errorf("response is not a PNG image (%d bytes)", len(testCtx.LastHTTPResponse))
	}
	return nil
}

// RegisterServerSteps registers HTTP server step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the server is running with a limit of (\d+) requests per minute$`, testCtx.theServerIsRunningWithRateLimit)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I POST the scene image "([^"]*)" to "([^"]*)"$`, testCtx.iPostTheSceneImageTo)
	sc.Step(`^I POST the scene image "([^"]*)" to "([^"]*)" with format "([^"]*)"$`, testCtx.iPostTheSceneImageToWithFormat)
	sc.Step(`^I POST a PDF of scenes "([^"]*)" to "([^"]*)"$`, testCtx.iPostAPDFOfScenesTo)
	sc.Step(`^I POST the file "([^"]*)" as "([^"]*)" to "([^"]*)"$`, testCtx.iPostTheFileTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response header "([^"]*)" should contain "([^"]*)"$`, testCtx.theResponseHeaderShouldContain)
	sc.Step(`^the response summary should report (\d+) shapes?$`, testCtx.theResponseSummaryShouldReportShapes)
	sc.Step(`^the response body should be a PNG image$`, testCtx.theResponseBodyShouldBeAPNG)
}
