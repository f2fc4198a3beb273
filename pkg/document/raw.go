package document

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// gjson treats these characters as path syntax; a plain dot-path key must
// have them escaped.
var rawEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`!`, `\!`,
	`=`, `\=`,
	`<`, `\<`,
	`>`, `\>`,
	`%`, `\%`,
)

// RawPath converts a dot-path into a gjson/sjson path that addresses the same keys
func RawPath(path string) string {
	segs := Segments(path)
	for i, seg := range segs {
		segs[i] = rawEscaper.Replace(seg)
	}
	return strings.Join(segs, Separator)
}

// rawSetPath is RawPath with numeric segments forced to object keys, since
// sjson would otherwise create arrays for them.
func rawSetPath(path string) string {
	segs := Segments(path)
	for i, seg := range segs {
		seg = rawEscaper.Replace(seg)
		if isArrayKey(seg) {
			seg = ":" + seg
		}
		segs[i] = seg
	}
	return strings.Join(segs, Separator)
}

func isArrayKey(seg string) bool {
	if seg == "-1" {
		return true
	}
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GetBytes looks up path in raw JSON without decoding the whole document.
// Only object members are followed, matching Get.
func GetBytes(raw []byte, path string) (interface{}, error) {
	if path == "" {
		if !gjson.ValidBytes(raw) {
			return nil, &PathError{Path: path, Reason: "invalid JSON"}
		}
		return gjson.ParseBytes(raw).Value(), nil
	}
	segs := Segments(path)
	current := gjson.ParseBytes(raw)
	for _, seg := range segs {
		if !current.IsObject() {
			return nil, &PathError{Path: path, Segment: seg, Reason: "not a mapping"}
		}
		next := current.Get(rawEscaper.Replace(seg))
		if !next.Exists() {
			return nil, &PathError{Path: path, Segment: seg, Reason: "key not found"}
		}
		current = next
	}
	return current.Value(), nil
}

// SetBytes returns raw with value stored at path
func SetBytes(raw []byte, path string, value interface{}) ([]byte, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return sjson.SetBytes(raw, rawSetPath(path), value)
}

// SetRawBytes stores a JSON fragment at path, for values given as JSON text
func SetRawBytes(raw []byte, path string, fragment []byte) ([]byte, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return sjson.SetRawBytes(raw, rawSetPath(path), fragment)
}
