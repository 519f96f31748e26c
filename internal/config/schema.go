package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	kverrors "github.com/systmms/securekv/internal/errors"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// validateSchema checks the raw YAML document against the embedded schema.
func validateSchema(doc interface{}) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return kverrors.ConfigError{
			Message:    fmt.Sprintf("schema validation error: %v", err),
			Suggestion: "Mapping keys must be strings",
		}
	}
	if result.Valid() {
		return nil
	}

	desc := result.Errors()
	messages := make([]string, 0, len(desc))
	for _, d := range desc {
		messages = append(messages, d.String())
	}
	first := desc[0]
	return kverrors.ConfigError{
		Field:   strings.TrimPrefix(first.Field(), "(root)."),
		Message: "schema validation failed:\n  - " + strings.Join(messages, "\n  - "),
	}
}
