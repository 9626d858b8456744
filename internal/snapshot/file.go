package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoSnapshot is returned by [Decode] for a document whose snapshot is
// missing or not an object, such as a partial section export.
var ErrNoSnapshot = errors.New("document has no snapshot")

// Format selects the encoding of a snapshot file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// LoadFile reads and parses an exported campaign file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %q: %w", path, err)
	}
	defer f.Close()

	sf, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse %q: %w", path, err)
	}
	return sf, nil
}

// Decode parses an exported campaign from r. The document is kept as read;
// see [File].
//
// YAML input is converted to JSON first so that the JSON field names remain
// the single source of truth for the wire shape.
func Decode(r io.Reader, format Format) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("snapshot: decode yaml: %w", err)
		}
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("snapshot: convert yaml: %w", err)
		}
	}

	var probe struct {
		Snapshot json.RawMessage `json:"snapshot"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if t := bytes.TrimSpace(probe.Snapshot); len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("snapshot: decode: %w", ErrNoSnapshot)
	}

	var sf File
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return &sf, nil
}

// Encode writes sf to w in the given format. JSON output is the document
// re-indented; YAML output keeps numbers as written.
func Encode(w io.Writer, sf *File, format Format) error {
	doc, err := sf.Document()
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if format == FormatYAML {
		var v any
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("snapshot: encode: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(yamlValue(v)); err != nil {
			return fmt.Errorf("snapshot: encode yaml: %w", err)
		}
		return enc.Close()
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

// yamlValue replaces the json.Number leaves of v with plain scalar nodes so
// numbers are written with their original text instead of as strings.
func yamlValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = yamlValue(e)
		}
	case []any:
		for i, e := range x {
			x[i] = yamlValue(e)
		}
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(string(x), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(x)}
	}
	return v
}
