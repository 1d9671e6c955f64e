// Package action turns free-form model output into validated, dispatchable
// operations. Parsing and dispatch are deliberately separate stages so a
// malformed response is distinguishable from a well-formed request for an
// operation that does not exist.
package action

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is a single structured operation extracted from model output.
type Action struct {
	Name   string         `json:"function_name"`
	Params map[string]any `json:"function_parms"`
}

// ParseError reports that model output did not contain a usable action.
// It carries the offending raw text so the failure can be audited.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse action: %s", e.Reason)
}

// Parse extracts the first syntactically valid JSON object from raw model
// output and validates it against the expected action shape. The model is
// instructed to reply with bare JSON, but prose preambles and code fences
// are common, so Parse scans for the object instead of decoding the whole
// body.
func Parse(raw string) (*Action, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return nil, &ParseError{Raw: raw, Reason: "no JSON object found in response"}
	}

	var act Action
	if err := json.Unmarshal(obj, &act); err != nil {
		return nil, &ParseError{Raw: raw, Reason: fmt.Sprintf("decode action object: %s", err)}
	}
	if act.Name == "" {
		return nil, &ParseError{Raw: raw, Reason: "missing function_name"}
	}
	if act.Params == nil {
		return nil, &ParseError{Raw: raw, Reason: "missing function_parms"}
	}

	return &act, nil
}

// firstJSONObject returns the first substring of raw that decodes as a JSON
// object. Candidate positions are every '{'; json.Decoder finds the end of
// the value so nested braces inside SQL strings do not confuse the scan.
func firstJSONObject(raw string) (json.RawMessage, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}

		end := i + int(dec.InputOffset())
		return json.RawMessage(raw[i:end]), true
	}
	return nil, false
}
