package executor

import (
	"encoding/json"
	"regexp"
)

// permissionRefusalPattern recognises a tool_result's content as a
// permission-refusal signature rather than an ordinary tool failure. The
// exact wording is CLI-defined; "requires approval" is the example given for
// the reference CLI (spec §4.4). A host targeting a different CLI supplies
// its own pattern via WithPermissionRefusalPattern.
var defaultPermissionRefusalPattern = regexp.MustCompile(`(?i)requires approval|permission denied|not permitted`)

// toolRecord is what the executor remembers about an open ToolUse so a later
// ToolResult can be correlated back to (tool name, tool input) by
// tool_use_id.
type toolRecord struct {
	name  string
	input json.RawMessage
}

// pendingPermission tracks a RequireHuman decision awaiting submitPermission.
type pendingPermission struct {
	toolName  string
	toolInput json.RawMessage
	answer    chan permissionAnswer
}

type permissionAnswer struct {
	allow  bool
	always bool
}
