// Package cli checks the external tools gemini-acp depends on.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhubert/gemini-acp/exec"
)

// versionTimeout bounds each version query.
const versionTimeout = 5 * time.Second

// Prerequisite represents a required CLI tool
type Prerequisite struct {
	Name        string // Command name or path (e.g., "gemini", "node")
	Required    bool   // Whether the tool is required to serve ACP sessions
	Description string // Human-readable description
	InstallURL  string // URL for installation instructions
}

// DefaultPrerequisites returns the tools needed by gemini-acp. executable is
// the configured Gemini CLI command.
func DefaultPrerequisites(executable string) []Prerequisite {
	if executable == "" {
		executable = "gemini"
	}
	return []Prerequisite{
		{
			Name:        executable,
			Required:    true,
			Description: "Gemini CLI",
			InstallURL:  "https://github.com/google-gemini/gemini-cli",
		},
		{
			Name:        "node",
			Required:    false, // Only needed by npm installs of the CLI
			Description: "Node.js runtime (for npm installs of Gemini CLI)",
			InstallURL:  "https://nodejs.org",
		},
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

// Check verifies that a CLI tool is available in PATH
func Check(ctx context.Context, executor exec.CommandExecutor, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := executor.LookPath(prereq.Name)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path
	result.Version = getVersion(ctx, executor, path)
	return result
}

// CheckAll verifies all prerequisites and returns results
func CheckAll(ctx context.Context, executor exec.CommandExecutor, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = Check(ctx, executor, prereq)
	}
	return results
}

// ValidateRequired checks that all required prerequisites were found.
// Returns nil if they were, otherwise an error describing what's missing.
func ValidateRequired(results []CheckResult) error {
	var missing []string

	for _, r := range results {
		if !r.Prerequisite.Required || r.Found {
			continue
		}
		missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
			r.Prerequisite.Name, r.Prerequisite.Description, r.Prerequisite.InstallURL))
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// getVersion attempts to get the version of a CLI tool
func getVersion(ctx context.Context, executor exec.CommandExecutor, name string) string {
	for _, flag := range []string{"--version", "-v"} {
		vctx, cancel := context.WithTimeout(ctx, versionTimeout)
		output, err := executor.Output(vctx, "", name, flag)
		cancel()
		if err != nil {
			continue
		}
		version, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
		// Limit length to avoid overly long version strings
		if len(version) > 100 {
			version = version[:100] + "..."
		}
		if version != "" {
			return version
		}
	}
	return ""
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		if r.Found && r.Version != "" {
			fmt.Fprintf(&sb, " (%s)", r.Version)
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
