package gemini

import (
	"regexp"
	"strings"
)

// noisePatterns match operational chatter the Gemini CLI prints around its reply.
// They are checked against the trimmed line.
var noisePatterns = []*regexp.Regexp{
	// Version banners: "Gemini CLI v0.9.0", "gemini 0.9.0", "Version: 0.9.0", bare "v0.9.0".
	// A bare version without the "v" can be an answer and is kept.
	regexp.MustCompile(`(?i)^gemini(\s+cli)?\s+v?\d+\.\d+`),
	regexp.MustCompile(`(?i)^version\s*:?\s*v?\d+\.\d+`),
	regexp.MustCompile(`(?i)^v\d+\.\d+\.\d+\S*$`),

	// Progress lines.
	regexp.MustCompile(`(?i)^(loading|initializing|initialising|starting)\b`),

	// A bracketed tag alone on the line: "[INFO]", "[gemini]".
	regexp.MustCompile(`^\[[^\[\]]+\]$`),

	// Empty prompt marker.
	regexp.MustCompile(`^>$`),

	// Model and connection announcements.
	regexp.MustCompile(`(?i)^(using\s+)?model\s*:`),
	regexp.MustCompile(`(?i)^connect(ing|ed)\s+to\b`),

	// Explicit debug tags.
	regexp.MustCompile(`(?i)^\[debug\]`),
	regexp.MustCompile(`(?i)^debug\s*:`),

	// Telemetry flush notice printed on exit.
	regexp.MustCompile(`(?i)^flushing log events`),
}

// IsNoise reports whether a single line of CLI output is operational noise
// rather than assistant content. Blank lines are not noise.
func IsNoise(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, re := range noisePatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// FilterNoise removes noise lines from text, keeping the remaining lines in order.
func FilterNoise(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !IsNoise(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
