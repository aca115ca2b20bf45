package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhubert/gemini-acp/exec"
)

func TestDefaultPrerequisites(t *testing.T) {
	prereqs := DefaultPrerequisites("")
	if len(prereqs) != 2 {
		t.Fatalf("expected 2 prerequisites, got %d", len(prereqs))
	}
	if prereqs[0].Name != "gemini" || !prereqs[0].Required {
		t.Errorf("first prerequisite should be the required gemini CLI, got %+v", prereqs[0])
	}
	if prereqs[1].Required {
		t.Error("node should be optional")
	}

	custom := DefaultPrerequisites("/opt/bin/gemini")
	if custom[0].Name != "/opt/bin/gemini" {
		t.Errorf("configured executable should be checked, got %q", custom[0].Name)
	}
}

func TestCheck_Found(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.AddPath("gemini", "/usr/local/bin/gemini")
	mock.AddExactMatch("/usr/local/bin/gemini", []string{"--version"}, exec.MockResponse{
		Stdout: []byte("0.9.1\nextra line\n"),
	})

	result := Check(context.Background(), mock, Prerequisite{Name: "gemini", Required: true})

	if !result.Found {
		t.Fatal("expected gemini to be found")
	}
	if result.Path != "/usr/local/bin/gemini" {
		t.Errorf("Path = %q", result.Path)
	}
	if result.Version != "0.9.1" {
		t.Errorf("Version = %q, want first line of output", result.Version)
	}
}

func TestCheck_VersionFallsBackToShortFlag(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.AddPath("node", "/usr/bin/node")
	mock.AddExactMatch("/usr/bin/node", []string{"--version"}, exec.MockResponse{Err: errors.New("unknown flag")})
	mock.AddExactMatch("/usr/bin/node", []string{"-v"}, exec.MockResponse{Stdout: []byte("v22.1.0\n")})

	result := Check(context.Background(), mock, Prerequisite{Name: "node"})

	if result.Version != "v22.1.0" {
		t.Errorf("Version = %q, want v22.1.0", result.Version)
	}
	if calls := mock.GetCalls(); len(calls) != 2 {
		t.Errorf("expected 2 version queries, got %d", len(calls))
	}
}

func TestCheck_LongVersionTruncated(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.AddPath("gemini", "/bin/gemini")
	mock.AddExactMatch("/bin/gemini", []string{"--version"}, exec.MockResponse{
		Stdout: []byte(strings.Repeat("x", 150)),
	})

	result := Check(context.Background(), mock, Prerequisite{Name: "gemini"})
	if len(result.Version) != 103 || !strings.HasSuffix(result.Version, "...") {
		t.Errorf("Version should be truncated to 100 chars plus ellipsis, got %d chars", len(result.Version))
	}
}

func TestCheck_NotFound(t *testing.T) {
	mock := exec.NewMockExecutor()

	result := Check(context.Background(), mock, Prerequisite{Name: "gemini", Required: true})

	if result.Found {
		t.Error("expected gemini to be missing")
	}
	if result.Error == nil || !strings.Contains(result.Error.Error(), "not found") {
		t.Errorf("Error = %v", result.Error)
	}
	if len(mock.GetCalls()) != 0 {
		t.Error("no version query should run for a missing tool")
	}
}

func TestValidateRequired(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.AddPath("node", "/usr/bin/node")

	results := CheckAll(context.Background(), mock, DefaultPrerequisites("gemini"))
	err := ValidateRequired(results)
	if err == nil {
		t.Fatal("expected error for missing gemini")
	}
	if !strings.Contains(err.Error(), "gemini") || strings.Contains(err.Error(), "node") {
		t.Errorf("error should name only the missing required tool: %v", err)
	}

	mock.AddPath("gemini", "/usr/bin/gemini")
	if err := ValidateRequired(CheckAll(context.Background(), mock, DefaultPrerequisites("gemini"))); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// Optional tools never fail validation.
	onlyGemini := exec.NewMockExecutor()
	onlyGemini.AddPath("gemini", "/usr/bin/gemini")
	if err := ValidateRequired(CheckAll(context.Background(), onlyGemini, DefaultPrerequisites("gemini"))); err != nil {
		t.Errorf("missing optional tool should not fail: %v", err)
	}
}

func TestFormatCheckResults(t *testing.T) {
	results := []CheckResult{
		{Prerequisite: Prerequisite{Name: "gemini", Required: true}, Found: true, Version: "0.9.1"},
		{Prerequisite: Prerequisite{Name: "node", Required: false}, Found: false},
	}

	out := FormatCheckResults(results)

	for _, want := range []string{"CLI Prerequisites:", "✓ gemini (0.9.1)", "○ node [optional]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	missing := FormatCheckResults([]CheckResult{{Prerequisite: Prerequisite{Name: "gemini", Required: true}}})
	if !strings.Contains(missing, "✗ gemini [REQUIRED]") {
		t.Errorf("required missing tool should be flagged:\n%s", missing)
	}
}
