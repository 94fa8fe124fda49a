package descriptor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists everything wrong with a descriptor.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid descriptor:\n  " + strings.Join(e.Problems, "\n  ")
}

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["base_url", "requests"],
  "properties": {
    "base_url": {"type": "string"},
    "headers": {"$ref": "#/definitions/headers"},
    "default_headers": {"$ref": "#/definitions/headers"},
    "variable_dir": {"type": "string"},
    "access_token_file": {"type": "string"},
    "requests": {
      "type": "array",
      "items": {"$ref": "#/definitions/entry"}
    }
  },
  "definitions": {
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "entry": {
      "type": "object",
      "required": ["tag", "method"],
      "properties": {
        "tag": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "method": {"type": "string", "pattern": "^(?i)(GET|POST|PUT|DELETE)$"},
        "endpoint": {"type": "string"},
        "params": {"type": "string"},
        "body": {
          "type": "object",
          "required": ["body_type", "body_file"],
          "properties": {
            "body_type": {"type": "string", "pattern": "^(?i)(JSON|FORM_DATA)$"},
            "body_file": {"type": "string", "minLength": 1}
          }
        },
        "token_path": {"type": "string"},
        "token_save": {"type": "boolean"},
        "token_type": {"type": "string"},
        "access_token_file": {"type": "string"},
        "save_to": {"type": "string"},
        "timeout": {"type": "string"},
        "structure": {"type": ["string", "object"]}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

func validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("parsing descriptor: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Problems: problems}
}
