// Package document addresses values inside JSON-like documents with dot-paths
// and loads documents from the formats the engine accepts.
package document

import (
	"errors"
	"fmt"
	"strings"
)

// Separator splits a path into mapping keys
const Separator = "."

// ErrPathNotFound is returned when a path cannot be followed through a document
var ErrPathNotFound = errors.New("path not found")

// PathError reports the segment at which a lookup stopped
type PathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path '%s': %s at segment '%s'", e.Path, e.Reason, e.Segment)
}

func (e *PathError) Is(target error) bool {
	return target == ErrPathNotFound
}

// Segments splits a dot-path. The empty path has no segments.
func Segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// Get walks doc along path. Only mappings are traversed; an absent key or a
// non-mapping intermediate fails with ErrPathNotFound.
func Get(doc interface{}, path string) (interface{}, error) {
	current := doc
	for _, seg := range Segments(path) {
		m, ok := asMap(current)
		if !ok {
			return nil, &PathError{Path: path, Segment: seg, Reason: "not a mapping"}
		}
		next, exists := m[seg]
		if !exists {
			return nil, &PathError{Path: path, Segment: seg, Reason: "key not found"}
		}
		current = next
	}
	return current, nil
}

// Exists reports whether path resolves in doc
func Exists(doc interface{}, path string) bool {
	_, err := Get(doc, path)
	return err == nil
}

// Set stores value at path, creating intermediate mappings as needed. An
// intermediate that holds a non-mapping value is replaced by a new mapping.
// Setting the empty path is a no-op.
func Set(doc map[string]interface{}, path string, value interface{}) {
	segs := Segments(path)
	if len(segs) == 0 || doc == nil {
		return
	}
	current := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[seg] = next
		}
		current = next
	}
	current[segs[len(segs)-1]] = value
}

// Delete removes the value at path. It reports whether anything was removed.
func Delete(doc map[string]interface{}, path string) bool {
	segs := Segments(path)
	if len(segs) == 0 {
		return false
	}
	parent, err := Get(doc, strings.Join(segs[:len(segs)-1], Separator))
	if err != nil {
		return false
	}
	m, ok := asMap(parent)
	if !ok {
		return false
	}
	last := segs[len(segs)-1]
	if _, exists := m[last]; !exists {
		return false
	}
	delete(m, last)
	return true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}
