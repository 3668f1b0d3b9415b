package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Change describes one top-level key that differs between two states.
type Change struct {
	Field   string          `json:"field"`
	Kind    string          `json:"kind"` // added, removed or changed
	Old     json.RawMessage `json:"old,omitempty"`
	New     json.RawMessage `json:"new,omitempty"`
	Summary string          `json:"summary"`
}

// ignoredFields never show up in a diff.
var ignoredFields = map[string]bool{"id": true, "created_at": true, "updated_at": true}

// Diff compares two JSON object states key by key. A nil state counts as
// an empty object, so a create lists every key as added. Values are equal
// when their canonical JSON encodings are equal. Changes are sorted by key.
func Diff(before, after json.RawMessage) ([]Change, error) {
	oldFields, err := decodeObject(before)
	if err != nil {
		return nil, fmt.Errorf("decoding before state: %w", err)
	}
	newFields, err := decodeObject(after)
	if err != nil {
		return nil, fmt.Errorf("decoding after state: %w", err)
	}

	keys := make(map[string]struct{}, len(oldFields)+len(newFields))
	for k := range oldFields {
		keys[k] = struct{}{}
	}
	for k := range newFields {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if !ignoredFields[k] {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	changes := []Change{}
	for _, k := range sorted {
		oldVal, inOld := oldFields[k]
		newVal, inNew := newFields[k]

		switch {
		case !inOld:
			changes = append(changes, Change{Field: k, Kind: "added", New: newVal, Summary: "added"})
		case !inNew:
			changes = append(changes, Change{Field: k, Kind: "removed", Old: oldVal, Summary: "removed"})
		case !bytes.Equal(oldVal, newVal):
			changes = append(changes, Change{
				Field: k, Kind: "changed", Old: oldVal, New: newVal,
				Summary: string(oldVal) + " → " + string(newVal),
			})
		}
	}
	return changes, nil
}

// decodeObject returns each top-level value in canonical encoding.
func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		// Re-encoding sorts nested keys and drops whitespace.
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = enc
	}
	return out, nil
}
