// Package diff computes shallow structural diffs between two resume
// content snapshots at top-level-field granularity.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Result lists the top-level content fields that differ between two
// snapshots. Fields equal in both are omitted. Slices are sorted by
// field name so identical inputs always produce identical output.
type Result struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Empty reports whether the two snapshots were identical.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Compute diffs two content blobs. Nil or empty content is treated as the
// empty object. Values present under the same key in both are compared
// structurally, not textually, so key ordering inside a serialized object
// never reports a modification.
func Compute(oldContent, newContent json.RawMessage) (Result, error) {
	oldFields, err := topLevelFields(oldContent)
	if err != nil {
		return Result{}, fmt.Errorf("parse old content: %w", err)
	}
	newFields, err := topLevelFields(newContent)
	if err != nil {
		return Result{}, fmt.Errorf("parse new content: %w", err)
	}

	result := Result{
		Added:    []string{},
		Removed:  []string{},
		Modified: []string{},
	}

	for key, newRaw := range newFields {
		oldRaw, ok := oldFields[key]
		if !ok {
			result.Added = append(result.Added, key)
			continue
		}
		equal, err := structurallyEqual(oldRaw, newRaw)
		if err != nil {
			return Result{}, fmt.Errorf("compare field %s: %w", key, err)
		}
		if !equal {
			result.Modified = append(result.Modified, key)
		}
	}
	for key := range oldFields {
		if _, ok := newFields[key]; !ok {
			result.Removed = append(result.Removed, key)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Modified)
	return result, nil
}

func topLevelFields(content json.RawMessage) (map[string]json.RawMessage, error) {
	if len(content) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(content, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// structurallyEqual unmarshals both values into generic form before
// comparing, which makes object-key order irrelevant.
func structurallyEqual(a, b json.RawMessage) (bool, error) {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false, err
	}
	return reflect.DeepEqual(av, bv), nil
}
