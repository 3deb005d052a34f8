package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/mtgate/internal/translation"
)

//go:embed translate_request.schema.json
var translateRequestSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateTranslateRequest decodes raw strictly, checks it against the
// embedded schema and parses locale codes.
func ValidateTranslateRequest(raw []byte) (*translation.Request, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode request JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	// Numbers stay json.Number so opaque metadata keeps integers exact.
	decoder := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(raw)))
	decoder.UseNumber()

	var req translation.Request
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	if err := validateSemantics(&req); err != nil {
		return nil, err
	}

	return &req, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("translate_request.schema.json", strings.NewReader(translateRequestSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("translate_request.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("request contains trailing content")
	}

	return value, nil
}

func validateSemantics(req *translation.Request) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	if req.SourceLanguage == "" {
		return fmt.Errorf("sourceLanguage must not be empty")
	}
	if req.TargetLanguage == "" {
		return fmt.Errorf("targetLanguage must not be empty")
	}

	seen := make(map[string]int, len(req.Segments))
	for i, seg := range req.Segments {
		if seg.Idx == nil {
			continue
		}
		if prev, exists := seen[*seg.Idx]; exists {
			return fmt.Errorf("segments[%d].idx duplicates segments[%d].idx %q", i, prev, *seg.Idx)
		}
		seen[*seg.Idx] = i
	}

	for i, entry := range req.Glossary {
		if strings.TrimSpace(entry.Term) == "" {
			return fmt.Errorf("glossary[%d].term must not be empty", i)
		}
	}

	return nil
}
