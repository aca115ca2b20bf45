package manager

import (
	"regexp"
	"strings"

	"github.com/zhubert/gemini-acp/gemini"
)

// permissionMarker matches an inline [[permission:<mode>]] directive.
var permissionMarker = regexp.MustCompile(`(?i)\[\[\s*permission\s*:\s*([a-z_-]*)\s*\]\]`)

// Flatten converts structured prompt content into the single text payload passed
// to the CLI. Text blocks are concatenated verbatim after permission markers are
// stripped; each resource carrying inline text is appended as a labeled code block.
//
// The returned mode is the permission override named by the last valid marker,
// or "" when the prompt carries none.
func Flatten(blocks []ContentBlock) (string, gemini.PermissionMode) {
	var b strings.Builder
	var override gemini.PermissionMode

	for _, block := range blocks {
		switch block.Kind {
		case BlockText:
			text, mode := stripPermissionMarkers(block.Text)
			if mode != "" {
				override = mode
			}
			b.WriteString(text)
		case BlockResource:
			if block.Text == "" {
				continue
			}
			b.WriteString("\n\nFile: ")
			b.WriteString(block.URI)
			b.WriteString("\n```\n")
			b.WriteString(block.Text)
			b.WriteString("\n```")
		}
	}

	return strings.TrimSpace(b.String()), override
}

// stripPermissionMarkers removes every marker from text and returns the mode named
// by the last one that parses.
func stripPermissionMarkers(text string) (string, gemini.PermissionMode) {
	var mode gemini.PermissionMode
	for _, m := range permissionMarker.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			continue
		}
		if parsed, err := gemini.ParsePermissionMode(m[1]); err == nil {
			mode = parsed
		}
	}
	return permissionMarker.ReplaceAllString(text, ""), mode
}
