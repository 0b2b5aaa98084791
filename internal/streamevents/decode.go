package streamevents

import "encoding/json"

// Decode turns one trimmed, non-blank NDJSON line into zero or more Events.
// It returns more than one Event when a single assistant/user message
// carries several content blocks (e.g. text followed by a tool_use block).
// An unrecognized "type" value or invalid JSON produces a single KindError
// Event; it never returns an error itself, matching the Stream Parser's
// requirement that one malformed line must not halt parsing.
func Decode(line []byte) []Event {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return []Event{{
			Kind: KindError,
			Error: &ErrorDetail{
				Detail: "not valid JSON: " + err.Error(),
				Raw:    string(line),
			},
		}}
	}

	switch probe.Type {
	case "system":
		return []Event{decodeSystem(line)}
	case "assistant":
		return decodeMessage(line)
	case "user":
		return decodeMessage(line)
	case "tool_use":
		return []Event{decodeToolUse(line)}
	case "tool_result":
		return []Event{decodeToolResult(line)}
	case "result":
		return []Event{decodeResult(line)}
	case "error":
		return []Event{decodeErrorLine(line)}
	default:
		return []Event{{
			Kind: KindError,
			Error: &ErrorDetail{
				Detail: "unknown_event_type: " + probe.Type,
				Raw:    string(line),
			},
		}}
	}
}

func rawCopy(line []byte) json.RawMessage {
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	return raw
}

func decodeSystem(line []byte) Event {
	var w wireMessage
	_ = json.Unmarshal(line, &w)
	return Event{
		Kind: KindSystem,
		System: &System{
			Subtype:   w.Subtype,
			SessionID: w.SessionID,
			Model:     w.Model,
			Raw:       rawCopy(line),
		},
	}
}

// decodeMessage handles both "assistant" and "user" wire messages: assistant
// messages carry text and tool_use content blocks; user messages carry
// tool_result content blocks (the real CLI's way of returning a completed
// tool call). Each block becomes its own Event so downstream consumers see
// the spec's flatter ToolUse/ToolResult alphabet.
func decodeMessage(line []byte) []Event {
	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return []Event{{
			Kind:  KindError,
			Error: &ErrorDetail{Detail: "malformed message: " + err.Error(), Raw: string(line)},
		}}
	}

	var events []Event
	var text string
	for _, block := range w.Message.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			events = append(events, Event{
				Kind: KindToolUse,
				ToolUse: &ToolUse{
					ID:    block.ID,
					Name:  block.Name,
					Input: block.Input,
				},
			})
		case "tool_result":
			events = append(events, Event{
				Kind: KindToolResult,
				ToolResult: &ToolResult{
					ToolUseID: block.ToolUseID,
					Content:   contentString(block.Content),
					IsError:   block.IsError,
				},
			})
		}
	}

	if text != "" {
		events = append([]Event{{
			Kind:      KindAssistant,
			Assistant: &Assistant{Text: text, Raw: rawCopy(line)},
		}}, events...)
	}

	if len(events) == 0 {
		// A content-free message (e.g. role-only) still counts as an
		// assistant chunk with empty text, preserving ordering for callers
		// that count events per line.
		events = append(events, Event{
			Kind:      KindAssistant,
			Assistant: &Assistant{Raw: rawCopy(line)},
		})
	}

	return events
}

// decodeToolUse handles a standalone top-level {"type":"tool_use",...} line,
// as distinct from a tool_use content block nested inside an assistant
// message (see decodeMessage). Some CLI versions emit the tool call as its
// own record instead of folding it into the assistant message.
func decodeToolUse(line []byte) Event {
	var w contentItem
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{
			Kind:  KindError,
			Error: &ErrorDetail{Detail: "malformed tool_use: " + err.Error(), Raw: string(line)},
		}
	}
	return Event{
		Kind: KindToolUse,
		ToolUse: &ToolUse{
			ID:    w.ID,
			Name:  w.Name,
			Input: w.Input,
		},
	}
}

// decodeToolResult handles a standalone top-level {"type":"tool_result",...}
// line, the counterpart to decodeToolUse.
func decodeToolResult(line []byte) Event {
	var w contentItem
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{
			Kind:  KindError,
			Error: &ErrorDetail{Detail: "malformed tool_result: " + err.Error(), Raw: string(line)},
		}
	}
	return Event{
		Kind: KindToolResult,
		ToolResult: &ToolResult{
			ToolUseID: w.ToolUseID,
			Content:   contentString(w.Content),
			IsError:   w.IsError,
		},
	}
}

func decodeResult(line []byte) Event {
	var w wireMessage
	_ = json.Unmarshal(line, &w)
	return Event{
		Kind: KindResult,
		Result: &Result{
			Subtype: w.Subtype,
			Output:  w.Result,
			IsError: w.IsError,
			Errors:  w.Errors,
			Raw:     rawCopy(line),
		},
	}
}

func decodeErrorLine(line []byte) Event {
	var w struct {
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(line, &w)
	return Event{
		Kind:  KindError,
		Error: &ErrorDetail{Detail: w.Detail, Raw: string(line)},
	}
}
