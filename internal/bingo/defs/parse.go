package defs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed game.schema.json
var gameSchema string

var (
	ErrEmptyDefinition    = errors.New("empty definition")
	ErrDuplicateChallenge = errors.New("duplicate challenge id")
)

// Validator checks raw definition documents against the embedded game schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	s, err := jsonschema.CompileString("bingo://game.schema.json", gameSchema)
	if err != nil {
		return nil, fmt.Errorf("compile game schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustValidator is NewValidator for package initialization and tests.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate decodes raw as YAML (JSON is accepted too) and validates the
// resulting document.
func (v *Validator) Validate(raw []byte) error {
	doc, err := jsonDocument(raw)
	if err != nil {
		return err
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// jsonDocument converts a YAML/JSON document into the value shapes the schema
// validator expects (maps, slices, json.Number).
func jsonDocument(raw []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc == nil {
		return nil, ErrEmptyDefinition
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document is not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("re-decode: %w", err)
	}
	return out, nil
}

// Parse validates and decodes one definition file. id is normally the file name
// without extension; it is normalized. Fields missing from the document keep
// the defaults from New. v may be nil to skip schema validation.
func Parse(id string, raw []byte, v *Validator) (*Game, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyDefinition
	}
	if v != nil {
		if err := v.Validate(raw); err != nil {
			return nil, err
		}
	}
	g := New(id)
	if err := yaml.Unmarshal(raw, g); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if strings.TrimSpace(g.Name) == "" {
		g.Name = DefaultName
	}
	if strings.TrimSpace(g.CompletionMessage) == "" {
		g.CompletionMessage = DefaultCompletionMessage
	}
	g.Digest = sha256Hex(raw)
	g.Index()
	if dup := g.DuplicateIDs(); len(dup) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateChallenge, strings.Join(dup, ", "))
	}
	return g, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
