package model

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	jss "github.com/kaptinlin/jsonschema"

	_ "embed"
)

//go:embed payload.schema.json
var payloadSchemaSource []byte

var payloadSchema = sync.OnceValues(func() (*jss.Schema, error) {
	compiler := jss.NewCompiler()
	schema, err := compiler.Compile(payloadSchemaSource)
	if err != nil {
		return nil, fmt.Errorf("compiling payload schema: %w", err)
	}
	return schema, nil
})

// ValidatePayload checks an encoded Payload against the embedded JSON
// schema.
func ValidatePayload(b []byte) error {
	schema, err := payloadSchema()
	if err != nil {
		return err
	}
	res := schema.Validate(b)
	if res.Valid {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors))
	for _, err := range res.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", err.Keyword, err.Error()))
	}
	slices.Sort(msgs)
	return fmt.Errorf("payload validation failed:\n%s", strings.Join(msgs, "\n"))
}
