package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePathInWorkspace(t *testing.T) {
	root := t.TempDir()
	resolvedRoot, err := ResolveWorkspaceRoot(root)
	if err != nil {
		t.Fatalf("ResolveWorkspaceRoot: %v", err)
	}

	cases := []struct {
		name    string
		rel     string
		wantErr error
	}{
		{"simple file", "index.html", nil},
		{"nested", "src/app.js", nil},
		{"empty", "", ErrEmptyPath},
		{"escape", "../escape.txt", ErrSandboxEscape},
		{"escape nested", "a/../../escape.txt", ErrSandboxEscape},
		{"absolute", "/etc/passwd", ErrPathAbsolute},
		{"null byte", "a\x00b", ErrPathNullByte},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolvePathInWorkspace(resolvedRoot, tc.rel)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && err != tc.wantErr {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestResolvePathInWorkspaceTooLong(t *testing.T) {
	root := t.TempDir()
	resolvedRoot, _ := ResolveWorkspaceRoot(root)
	long := strings.Repeat("a", MaxRelativePathBytes+1)
	if _, err := ResolvePathInWorkspace(resolvedRoot, long); err != ErrPathTooLong {
		t.Fatalf("want ErrPathTooLong, got %v", err)
	}
}

func TestEnsureTextSizeWithinLimit(t *testing.T) {
	ok := strings.Repeat("a", MaxWriteBytes)
	if err := EnsureTextSizeWithinLimit(ok); err != nil {
		t.Fatalf("unexpected error at limit: %v", err)
	}
	tooBig := strings.Repeat("a", MaxWriteBytes+1)
	if err := EnsureTextSizeWithinLimit(tooBig); err != ErrTextTooLarge {
		t.Fatalf("want ErrTextTooLarge, got %v", err)
	}
}

func TestValidateTimeout(t *testing.T) {
	for _, v := range []int{1, 60, 120} {
		if err := ValidateTimeout(v); err != nil {
			t.Fatalf("timeout %d should be valid: %v", v, err)
		}
	}
	for _, v := range []int{0, -1, 121, 1000} {
		if err := ValidateTimeout(v); err != ErrInvalidTimeout {
			t.Fatalf("timeout %d should be invalid, got %v", v, err)
		}
	}
}

func TestSanitizeCLIArguments(t *testing.T) {
	if _, err := SanitizeCLIArguments([]string{"echo", "hello; rm -rf /"}); err == nil {
		t.Fatalf("expected rejection of shell metacharacters")
	}
	out, err := SanitizeCLIArguments([]string{"node", "tests.js"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 args, got %d", len(out))
	}
}

func TestRunSafeCommand(t *testing.T) {
	root := t.TempDir()
	resolvedRoot, _ := ResolveWorkspaceRoot(root)
	sb := New(resolvedRoot)

	res, err := sb.RunSafeCommand([]string{"echo", "hi"}, "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("want exit 0, got %d: %s", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "hi") {
		t.Fatalf("expected stdout to contain 'hi', got %q", res.Stdout)
	}

	res2, err := sb.RunSafeCommand([]string{"false"}, "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res2.ExitCode == 0 {
		t.Fatalf("expected non-zero exit from false")
	}

	if _, err := sb.RunSafeCommand([]string{"echo"}, "", 0); err == nil {
		t.Fatalf("expected timeout validation error")
	}
}

func TestRunSafeCommandFilteredEnv(t *testing.T) {
	root := t.TempDir()
	resolvedRoot, _ := ResolveWorkspaceRoot(root)
	sb := New(resolvedRoot)
	os.Setenv("LOW_CORTISOL_SECRET_TEST_VAR", "leak-me")
	defer os.Unsetenv("LOW_CORTISOL_SECRET_TEST_VAR")

	scriptPath := filepath.Join(root, "check_env.sh")
	script := "#!/bin/sh\nif [ -n \"$LOW_CORTISOL_SECRET_TEST_VAR\" ]; then exit 1; fi\nexit 0\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	res, err := sb.RunSafeCommand([]string{"/bin/sh", scriptPath}, "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected filtered env to hide custom var, got exit %d", res.ExitCode)
	}
}
