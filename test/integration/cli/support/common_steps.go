package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/shapedetect/cmd/shapedetect/cmd"
	"github.com/MeKo-Tech/shapedetect/internal/testutil"
)

const commandTimeout = 60 * time.Second

// sceneByName returns the named synthetic scene: mixed, blank or a single
// shape type.
func sceneByName(name string) (testutil.Scene, error) {
	switch name {
	case "mixed":
		return testutil.MixedScene(), nil
	case "blank":
		return testutil.BlankScene(), nil
	}
	for _, s := range testutil.SingleShapeScenes() {
		if s.Name == name {
			return s, nil
		}
	}
	return testutil.Scene{}, fmt.Errorf("unknown scene %q", name)
}

// splitArgs splits a command line on spaces, keeping single-quoted parts together.
func splitArgs(command string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range command {
		switch {
		case r == '\'':
			quoted = !quoted
			started = true
		case r == ' ' && !quoted:
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, current.String())
	}
	return args
}

// theSceneImageExists writes the named scene as <name>.png into the temp dir.
func (testCtx *TestContext) theSceneImageExists(name string) error {
	return testCtx.theSceneImageExistsIn(name, "")
}

func (testCtx *TestContext) theSceneImageExistsIn(name, dir string) error {
	scene, err := sceneByName(name)
	if err != nil {
		return err
	}
	_, err = scene.WriteFile(testCtx.Path(dir))
	return err
}

// allSingleShapeScenesExistIn writes one image per shape type into dir.
func (testCtx *TestContext) allSingleShapeScenesExistIn(dir string) error {
	for _, s := range testutil.SingleShapeScenes() {
		if _, err := s.WriteFile(testCtx.Path(dir)); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) aFileContaining(name, content string) error {
	path := testCtx.Path(name)
	if err := testutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func (testCtx *TestContext) aConfigFileWith(name string, body *godog.DocString) error {
	return testCtx.aFileContaining(name, body.Content)
}

func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	return testCtx.SetEnv(name, value)
}

// iRunCommand executes a shapedetect command line in-process.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command

	parts := splitArgs(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] != "shapedetect" {
		return fmt.Errorf("only shapedetect commands can be run, got %q", parts[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(parts[1:])

	start := time.Now()
	err := root.ExecuteContext(ctx)
	testCtx.LastDuration = time.Since(start)
	testCtx.LastStdout = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0
	if err != nil {
		testCtx.LastExitCode = 1
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput())
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput())
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteCommandVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput(), expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput())
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastStdout, text) {
		return fmt.Errorf("output contains '%s'\nActual output: %s", text, testCtx.LastStdout)
	}
	return nil
}

// stdoutJSON decodes the command's stdout.
func (testCtx *TestContext) stdoutJSON(v interface{}) error {
	if err := json.Unmarshal([]byte(testCtx.LastStdout), v); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	var js json.RawMessage
	return testCtx.stdoutJSON(&js)
}

// theJSONShouldContain checks a dotted field path in the stdout JSON object.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	var data map[string]interface{}
	if err := testCtx.stdoutJSON(&data); err != nil {
		return err
	}
	return checkFieldExists(data, field)
}

func checkFieldExists(data map[string]interface{}, field string) error {
	parts := strings.Split(field, ".")
	current := data
	for i, part := range parts {
		val, exists := current[part]
		if !exists {
			return fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return nil
		}
		next, ok := val.(map[string]interface{})
		if !ok {
			return fmt.Errorf("cannot navigate deeper into non-object field '%s'", part)
		}
		current = next
	}
	return nil
}

// theErrorShouldMention matches case-insensitively against the error and output.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}
	full := testCtx.LastOutput() + " " + testCtx.LastError.Error()
	if !strings.Contains(strings.ToLower(full), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, full)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	path := testCtx.Path(testCtx.substituteCommandVariables(name))
	if !testutil.FileExists(path) {
		return fmt.Errorf("file %s does not exist", path)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, expected string) error {
	path := testCtx.Path(testCtx.substituteCommandVariables(name))
	data, err := os.ReadFile(path) //nolint:gosec // G304: scenario temp file
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain '%s'\nContent: %s", path, expected, data)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldCompleteWithin(seconds int) error {
	if limit := time.Duration(seconds) * time.Second; testCtx.LastDuration > limit {
		return fmt.Errorf("command took %v, limit %v", testCtx.LastDuration, limit)
	}
	return nil
}

func (testCtx *TestContext) registerSetupSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the scene image "([^"]*)" exists$`, testCtx.theSceneImageExists)
	sc.Step(`^the scene image "([^"]*)" exists in "([^"]*)"$`, testCtx.theSceneImageExistsIn)
	sc.Step(`^all single-shape scene images exist in "([^"]*)"$`, testCtx.allSingleShapeScenesExistIn)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^a config file "([^"]*)" with:$`, testCtx.aConfigFileWith)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}

func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the command should complete within (\d+) seconds$`, testCtx.theCommandShouldCompleteWithin)
}

func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
}

func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

// RegisterCommonSteps registers all common step definitions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerSetupSteps(sc)
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerFileSteps(sc)
}
