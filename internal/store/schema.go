package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema describes the result file as a whole: an array of records.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {"type": "object"}
}`

// recordSchema describes one tender record.
const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title"],
  "properties": {
    "tenderNumber":   {"type": ["string", "null"]},
    "title":          {"type": "string"},
    "category":       {"type": "string"},
    "advertisedDate": {"type": ["string", "null"]},
    "closingDate":    {"type": ["string", "null"]},
    "buyerName":      {"type": ["string", "null"]},
    "eSubmission":    {"type": ["string", "null"]},
    "tenderType":     {"type": ["string", "null"]},
    "province":       {"type": ["string", "null"]},
    "datePublished":  {"type": ["string", "null"]},
    "documentLinks": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "url":  {"type": "string"}
        }
      }
    },
    "source": {"type": "string"}
  }
}`

type schemas struct {
	document *gojsonschema.Schema
	record   *gojsonschema.Schema
}

var (
	schemaOnce sync.Once
	compiled   schemas
	schemaErr  error
)

func loadSchemas() (schemas, error) {
	schemaOnce.Do(func() {
		compiled.document, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
		if schemaErr != nil {
			return
		}
		compiled.record, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	})
	return compiled, schemaErr
}

// validateDocument checks that raw result-file bytes hold an array of objects.
func validateDocument(data []byte) error {
	sc, err := loadSchemas()
	if err != nil {
		return fmt.Errorf("compile result schema: %w", err)
	}
	return validate(sc.document, data, "results")
}

// validateRecord checks one array element against recordSchema.
func validateRecord(data []byte) error {
	sc, err := loadSchemas()
	if err != nil {
		return fmt.Errorf("compile result schema: %w", err)
	}
	return validate(sc.record, data, "record")
}

func validate(schema *gojsonschema.Schema, data []byte, what string) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s do not match schema: %s", what, strings.Join(msgs, "; "))
}
