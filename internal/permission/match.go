package permission

import (
	"encoding/json"
	"strings"
)

// ActionType classifies a tool call for display purposes only; it never
// changes a Decision, it just enriches RequireHuman for a UI (supplementary
// to spec §4.3, grounded on kandev's tool -> action-type switch).
type ActionType string

const (
	ActionCommand   ActionType = "command"
	ActionFileRead  ActionType = "file-read"
	ActionFileWrite ActionType = "file-write"
	ActionNetwork   ActionType = "network"
	ActionOther     ActionType = "other"
)

// ClassifyAction returns the display-only ActionType for a tool name.
func ClassifyAction(toolName string) ActionType {
	base := toolName
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "Bash":
		return ActionCommand
	case "Read", "Grep", "Glob":
		return ActionFileRead
	case "Edit", "Write":
		return ActionFileWrite
	case "WebFetch", "WebSearch":
		return ActionNetwork
	default:
		return ActionOther
	}
}

// matchSubject is the string a pattern is tested against: the effective
// identifier described in spec §4.3 ("Base(args:glob)" or plain "Base").
//
// For Bash calls, the subject is the raw command string extracted from
// tool_input's "command" field; everything else matches on the bare tool
// name. The colon in a pattern like "Bash(git status:*)" separates a
// required literal command prefix from a suffix glob over the remainder —
// this is the concrete reading adopted for the open glob-semantics question
// in spec §9 (recorded in DESIGN.md).
func matchSubject(toolName string, input json.RawMessage) (base string, command string) {
	if toolName != "Bash" {
		return toolName, ""
	}
	var payload struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(input, &payload)
	return "Bash", payload.Command
}

// matches reports whether pattern matches a tool call identified by
// (toolName, input).
func matches(pattern, toolName string, input json.RawMessage) bool {
	if pattern == wildcard {
		return true
	}

	open := strings.IndexByte(pattern, '(')
	if open < 0 {
		return pattern == toolName
	}
	if !strings.HasSuffix(pattern, ")") {
		return false
	}
	base := pattern[:open]
	inner := pattern[open+1 : len(pattern)-1]

	subjectBase, command := matchSubject(toolName, input)
	if base != subjectBase {
		return false
	}

	colon := strings.IndexByte(inner, ':')
	if colon < 0 {
		return inner == command
	}
	prefix := inner[:colon]
	glob := inner[colon+1:]

	rest, ok := stripCommandPrefix(command, prefix)
	if !ok {
		return false
	}
	if glob == wildcard {
		return true
	}
	return rest == glob
}

// stripCommandPrefix reports whether command starts with the whitespace-
// delimited prefix (either equal to it, or followed by a space), returning
// everything after the prefix and any single separating space.
func stripCommandPrefix(command, prefix string) (string, bool) {
	if command == prefix {
		return "", true
	}
	if strings.HasPrefix(command, prefix+" ") {
		return strings.TrimPrefix(command, prefix+" "), true
	}
	return "", false
}

func matchesAny(patterns []string, toolName string, input json.RawMessage) bool {
	for _, p := range patterns {
		if matches(p, toolName, input) {
			return true
		}
	}
	return false
}
