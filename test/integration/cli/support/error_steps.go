package support

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

func (testCtx *TestContext) theErrorShouldBeAnUnknownFlag(flag string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an unknown flag error for %s, command succeeded", flag)
	}
	msg := testCtx.LastError.Error()
	if !strings.Contains(msg, "unknown flag") && !strings.Contains(msg, "unknown shorthand flag") {
		return fmt.Errorf("expected unknown flag error, got: %s", msg)
	}
	if !strings.Contains(msg, flag) {
		return fmt.Errorf("error does not name %s: %s", flag, msg)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldBeAnUnknownCommand(name string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an unknown command error for %s, command succeeded", name)
	}
	msg := testCtx.LastError.Error()
	if !strings.Contains(msg, "unknown command") || !strings.Contains(msg, name) {
		return fmt.Errorf("expected unknown command %q, got: %s", name, msg)
	}
	return nil
}

func (testCtx *TestContext) noOutputShouldBeWritten() error {
	if strings.TrimSpace(testCtx.LastStdout) != "" {
		return fmt.Errorf("expected empty stdout, got: %s", testCtx.LastStdout)
	}
	return nil
}

// RegisterErrorSteps registers error handling step definitions.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should be an unknown flag "([^"]*)"$`, testCtx.theErrorShouldBeAnUnknownFlag)
	sc.Step(`^the error should be an unknown command "([^"]*)"$`, testCtx.theErrorShouldBeAnUnknownCommand)
	sc.Step(`^no results should be written to stdout$`, testCtx.noOutputShouldBeWritten)
}
