package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format names a document encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CBOR Format = "cbor"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSON, YAML, CBOR:
		return f, nil
	case "yml":
		return YAML, nil
	}
	return "", invalidf("unknown format %q", s)
}

// FormatForPath guesses a document format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return JSON, true
	case ".yaml", ".yml":
		return YAML, true
	case ".cbor":
		return CBOR, true
	}
	return "", false
}

// Options controls document output.
type Options struct {
	// Compact selects single-line JSON and flow-style YAML.
	Compact bool
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("render: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("render: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode writes v, a value graph, as a document.
func Encode(w io.Writer, v any, f Format, opts Options) error {
	t, err := ToTree(v)
	if err != nil {
		return err
	}
	return EncodeTree(w, t, f, opts)
}

// EncodeTree writes an already built tree of maps, slices and scalars.
func EncodeTree(w io.Writer, t any, f Format, opts Options) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if !opts.Compact {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	case YAML:
		n := treeToNode(t)
		if opts.Compact {
			n.Style = yaml.FlowStyle
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return nil
	case CBOR:
		data, err := cborEnc.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode CBOR: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return invalidf("unknown format %q", f)
}

// Decode parses a document into a value graph ready for nrbf.Marshal. JSON
// input may carry comments and trailing commas.
func Decode(data []byte, f Format) (any, error) {
	t, err := DecodeTree(data, f)
	if err != nil {
		return nil, err
	}
	return FromTree(t)
}

// DecodeTree parses a document without interpreting it.
func DecodeTree(data []byte, f Format) (any, error) {
	switch f {
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		var t any
		if err := dec.Decode(&t); err != nil {
			return nil, invalidf("decode JSON: %v", err)
		}
		if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
			return nil, invalidf("decode JSON: trailing data after document")
		}
		return t, nil
	case YAML:
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, invalidf("decode YAML: %v", err)
		}
		return nodeToTree(&doc, 0)
	case CBOR:
		var t any
		if err := cborDec.Unmarshal(data, &t); err != nil {
			return nil, invalidf("decode CBOR: %v", err)
		}
		return t, nil
	}
	return nil, invalidf("unknown format %q", f)
}
