// internal/remote/schema.go
package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// globalModelSchema pins the shape of GET /global-model/{appId}. A
// response that fails it is a ProtocolMismatch, never installed.
const globalModelSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["globalActionCounter", "globalActionCounterIVs", "timePatterns", "timePatternsIVs"],
  "properties": {
    "globalActionCounter": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    },
    "globalActionCounterIVs": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "timePatterns": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "propertyNames": {"pattern": "^([0-9]|1[0-9]|2[0-3])$"},
        "additionalProperties": {"type": "integer", "minimum": 0}
      }
    },
    "timePatternsIVs": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var compileGlobalModelSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("global-model.schema.json", strings.NewReader(globalModelSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("global-model.schema.json")
})

func validateGlobalModel(body []byte) error {
	schema, err := compileGlobalModelSchema()
	if err != nil {
		return fmt.Errorf("compile global-model schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
	}
	return nil
}
