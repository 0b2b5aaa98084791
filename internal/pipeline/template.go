package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// resolveInput turns a stage's InputTemplate, the prior-stage outputs
// collected so far, and the pipeline's own initial_input into the JSON
// value that stage actually receives.
//
// A nil template at stage 0 passes initial_input through unchanged; a nil
// template at any later stage passes the immediately preceding stage's
// output through unchanged. A non-nil template builds a fresh JSON object
// from its Literal/From entries.
func resolveInput(tmpl InputTemplate, stageIndex int, stageOrder []string, outputs map[string]json.RawMessage, initialInput json.RawMessage) (json.RawMessage, error) {
	if tmpl == nil {
		if stageIndex == 0 {
			return initialInput, nil
		}
		prev, ok := outputs[stageOrder[stageIndex-1]]
		if !ok {
			return nil, fmt.Errorf("%w: stage %q", ErrUnresolvedRef, stageOrder[stageIndex-1])
		}
		return prev, nil
	}

	out := make(map[string]json.RawMessage, len(tmpl))
	for field, val := range tmpl {
		if val.Literal != nil {
			out[field] = val.Literal
			continue
		}
		if val.From == nil {
			return nil, fmt.Errorf("%w: field %q has neither literal nor from", ErrUnresolvedRef, field)
		}
		source, ok := outputs[val.From.Stage]
		if !ok {
			return nil, fmt.Errorf("%w: stage %q", ErrUnresolvedRef, val.From.Stage)
		}
		resolved, err := extractPath(source, val.From.Path)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[field] = resolved
	}
	return json.Marshal(out)
}

// extractPath navigates a dot-separated path through a decoded JSON
// object. An empty path returns raw unchanged.
func extractPath(raw json.RawMessage, path string) (json.RawMessage, error) {
	if path == "" {
		return raw, nil
	}

	var cur interface{}
	if err := json.Unmarshal(raw, &cur); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedRef, err)
	}

	for _, segment := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: path segment %q is not an object", ErrUnresolvedRef, segment)
		}
		next, ok := obj[segment]
		if !ok {
			return nil, fmt.Errorf("%w: no field %q", ErrUnresolvedRef, segment)
		}
		cur = next
	}

	return json.Marshal(cur)
}
