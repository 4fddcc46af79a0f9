// Package exec implements run_unit_tests: a strictly bounded, synchronous
// execution of a single test file through a node-like runner. Unlike the
// general-purpose shell tool this package's name once held in the
// teacher repo, there is no background-process mode here — every call
// blocks for at most 120 seconds and returns a structured envelope.
package exec

import (
	"fmt"
	"os"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Tools bundles the exec-backed tool handlers bound to one sandbox.
type Tools struct {
	SB *sandbox.Sandbox
	// Runner is the executable used to run a test file, e.g. "node".
	// Overridable in tests.
	Runner string
}

// New builds the exec tool set over sb with the default "node" runner.
func New(sb *sandbox.Sandbox) *Tools {
	return &Tools{SB: sb, Runner: "node"}
}

func asString(v any) (string, bool) { s, ok := v.(string); return s, ok }

func asInt(v any, def int) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		_ = def
		return 0, false
	}
}

// looksLikeTestFile rejects filenames that are not plausibly test files.
func looksLikeTestFile(rel string) bool {
	base := strings.ToLower(rel)
	return strings.HasSuffix(base, ".test.js") || strings.HasSuffix(base, "tests.js") || strings.Contains(base, "test")
}

// containsAssertions does a light textual check that the file performs at
// least one assertion-shaped call, rejecting trivially empty test files.
func containsAssertions(content string) bool {
	markers := []string{"assert", "expect(", "throw new Error"}
	lower := strings.ToLower(content)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// RunUnitTests implements run_unit_tests(test_file, timeout_seconds?): it
// rejects non-test filenames, requires test assertions in source, and
// executes a node-like runner if available, else reports a missing
// dependency rather than failing the whole run.
func (t *Tools) RunUnitTests(args map[string]any) models.ToolResult {
	testFile, _ := asString(args["test_file"])
	timeoutSeconds := 30
	if raw, present := args["timeout_seconds"]; present {
		n, ok := asInt(raw, 30)
		if !ok {
			return models.TransportError("InvalidArgument", "timeout_seconds must be an integer")
		}
		timeoutSeconds = n
	}
	if err := sandbox.ValidateTimeout(timeoutSeconds); err != nil {
		return models.TransportError("InvalidArgument", err.Error())
	}

	if !looksLikeTestFile(testFile) {
		return models.Fail("ToolFailure", "test_file does not look like a test file", map[string]any{"test_file": testFile})
	}

	resolved, err := t.SB.Resolve(testFile)
	if err != nil {
		return sandboxErr(err)
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("open test file: %v", err), nil)
	}
	if !containsAssertions(string(raw)) {
		return models.Fail("ToolFailure", "test file contains no recognizable assertions", map[string]any{"test_file": testFile})
	}

	runner := t.Runner
	if runner == "" {
		runner = "node"
	}
	res, runErr := t.SB.RunSafeCommand([]string{runner, resolved}, "", timeoutSeconds)
	if runErr != nil {
		return models.Fail("ToolFailure", runErr.Error(), nil)
	}
	if res.Error != "" && res.ExitCode == -1 && !res.TimedOut {
		return models.Fail("ToolFailure", "missing dependency: "+runner+" not found", map[string]any{"detail": res.Error})
	}

	return models.Ok(map[string]any{
		"test_file": testFile,
		"exit_code": res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"timed_out": res.TimedOut,
		"passed":    res.ExitCode == 0 && !res.TimedOut,
	})
}

func sandboxErr(err error) models.ToolResult {
	if err == sandbox.ErrSandboxEscape {
		return models.TransportError("ValueError", "Path escapes workspace sandbox")
	}
	return models.TransportError("InvalidArgument", err.Error())
}
