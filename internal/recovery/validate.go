package recovery

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "schema://recovery-snapshot.json"

// envelopeSchema checks the outer record only; the session payload is
// decoded by its own type.
const envelopeSchema = `{
  "type": "object",
  "required": ["session", "savedAt", "version"],
  "properties": {
    "session": {"type": "object"},
    "savedAt": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1}
  }
}`

var compileEnvelope = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var def any
	if err := json.Unmarshal([]byte(envelopeSchema), &def); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile(envelopeSchemaURL)
})

// validateEnvelope reports whether raw is a well-formed snapshot record.
func validateEnvelope(raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	compiled, err := compileEnvelope()
	if err != nil {
		return fmt.Errorf("compile envelope schema: %w", err)
	}
	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
