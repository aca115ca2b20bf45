package gemini

import (
	"errors"
	"fmt"
	"strings"
)

// PermissionMode controls how much autonomy the Gemini CLI gets for file and shell operations.
type PermissionMode string

const (
	// PermissionDefault leaves approval behavior to the CLI's own defaults.
	PermissionDefault PermissionMode = "default"

	// PermissionAutoEdit auto-approves file edits (--approval-mode auto_edit).
	PermissionAutoEdit PermissionMode = "auto_edit"

	// PermissionYolo auto-approves every action (--yolo).
	PermissionYolo PermissionMode = "yolo"
)

// ErrInvalidPermissionMode is returned by ParsePermissionMode for unknown values.
var ErrInvalidPermissionMode = errors.New("invalid permission mode")

// permissionAliases maps accepted spellings to canonical modes.
var permissionAliases = map[string]PermissionMode{
	"":                  PermissionDefault,
	"default":           PermissionDefault,
	"auto_edit":         PermissionAutoEdit,
	"auto-edit":         PermissionAutoEdit,
	"accept-edits":      PermissionAutoEdit,
	"acceptedits":       PermissionAutoEdit,
	"yolo":              PermissionYolo,
	"bypass":            PermissionYolo,
	"bypass-all":        PermissionYolo,
	"bypasspermissions": PermissionYolo,
}

// ParsePermissionMode normalizes a configured permission mode.
// The empty string maps to PermissionDefault.
func ParsePermissionMode(s string) (PermissionMode, error) {
	if mode, ok := permissionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q (want default, auto_edit or yolo)", ErrInvalidPermissionMode, s)
}

// ModeInfo describes a permission mode for clients that present a mode picker.
type ModeInfo struct {
	Mode        PermissionMode
	Name        string
	Description string
}

// PermissionModes lists the supported modes in presentation order.
func PermissionModes() []ModeInfo {
	return []ModeInfo{
		{PermissionDefault, "Default", "Gemini CLI asks before editing files or running commands"},
		{PermissionAutoEdit, "Auto Edit", "File edits are approved automatically"},
		{PermissionYolo, "YOLO", "Every action is approved automatically"},
	}
}

// BuildArgs returns the command-line arguments for a single-shot invocation.
func BuildArgs(prompt string, mode PermissionMode) []string {
	args := []string{"--prompt", prompt}
	switch mode {
	case PermissionYolo:
		args = append(args, "--yolo")
	case PermissionAutoEdit:
		args = append(args, "--approval-mode", "auto_edit")
	}
	return args
}
