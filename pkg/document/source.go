package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// Format identifies a document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// FormatFor picks the format from a file extension, defaulting to JSON
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".hcl":
		return FormatHCL
	default:
		return FormatJSON
	}
}

// Source produces a document on demand
type Source interface {
	// Raw returns the document as JSON text, keeping mapping keys in source order
	Raw() ([]byte, error)
}

// File is a document stored on disk
type File struct {
	Path   string
	Format Format
}

// NewFile returns a File whose format follows the path's extension
func NewFile(path string) File {
	return File{Path: path, Format: FormatFor(path)}
}

// Raw reads the file and converts it to JSON text
func (f File) Raw() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	format := f.Format
	if format == "" {
		format = FormatFor(f.Path)
	}
	raw, err := ToJSON(data, format, f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.Path, err)
	}
	return raw, nil
}

// Text is a document given inline as JSON text
type Text string

func (t Text) Raw() ([]byte, error) {
	return []byte(t), nil
}

// ToJSON converts data in the given format to JSON text. The name is used in
// diagnostics only.
func ToJSON(data []byte, format Format, name string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yamlToJSON(data)
	case FormatTOML:
		return tomlToJSON(data)
	case FormatHCL:
		return hclToJSON(data, name)
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return data, nil
	}
}

// Decode parses JSON text into a document. Numbers decode as json.Number so
// integers and floats stay distinguishable.
func Decode(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// Raw returns JSON text for sources given as text, bytes, files, readers or
// Source values. ok is false for values that are already parsed documents.
func Raw(src interface{}) (raw []byte, ok bool, err error) {
	switch s := src.(type) {
	case Source:
		raw, err = s.Raw()
		return raw, true, err
	case []byte:
		return s, true, nil
	case json.RawMessage:
		return []byte(s), true, nil
	case io.Reader:
		raw, err = io.ReadAll(s)
		return raw, true, err
	case string:
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return []byte(s), true, nil
		}
		if info, statErr := os.Stat(s); statErr == nil && !info.IsDir() {
			raw, err = NewFile(s).Raw()
			return raw, true, err
		}
		return []byte(s), true, nil
	}
	return nil, false, nil
}

// Resolve turns src into a document. Parsed values are deep-copied and
// normalized; everything else goes through Raw and Decode.
func Resolve(src interface{}) (interface{}, error) {
	if src == nil {
		return nil, nil
	}
	raw, ok, err := Raw(src)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Normalize(Clone(src)), nil
	}
	doc, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	return doc, nil
}

// ResolveMap is Resolve for sources that must be a mapping
func ResolveMap(src interface{}) (map[string]interface{}, error) {
	doc, err := Resolve(src)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := doc.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("document must be a mapping, got %s", KindOf(doc))
	}
	return m, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if len(node.Content) == 0 {
		buf.WriteString("null")
		return buf.Bytes(), nil
	}
	if err := writeYAMLNode(&buf, node.Content[0]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeYAMLNode emits JSON for a YAML node, keeping mapping key order
func writeYAMLNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.AliasNode:
		return writeYAMLNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return err
		}
		enc, err := json.Marshal(Normalize(v))
		if err != nil {
			return err
		}
		buf.Write(enc)
	}
	return nil
}

func tomlToJSON(data []byte) ([]byte, error) {
	var v map[string]interface{}
	if _, err := toml.Decode(string(data), &v); err != nil {
		return nil, err
	}
	return json.Marshal(Normalize(v))
}

// hclToJSON reads top-level attributes of an HCL body. Expressions are
// evaluated without variables, so only literal values are accepted.
func hclToJSON(data []byte, name string) ([]byte, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, diags
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	values := make(map[string]cty.Value, len(attrs))
	for key, attr := range attrs {
		val, valDiags := attr.Expr.Value(&hcl.EvalContext{})
		if valDiags.HasErrors() {
			return nil, valDiags
		}
		values[key] = val
	}
	obj := cty.ObjectVal(values)
	return ctyjson.Marshal(obj, obj.Type())
}
