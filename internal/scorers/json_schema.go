package scorers

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tracewatch/tracewatch/internal/models"
)

// jsonSchemaArgs configures the json_schema code scorer.
type jsonSchemaArgs struct {
	// Schema is an inline JSON schema the trace outputs must satisfy.
	Schema map[string]any `mapstructure:"schema"`
}

// newJSONSchemaFunc compiles the schema once at scorer construction so a
// bad schema is rejected when the run assembles its scorers, not per
// trace.
func newJSONSchemaFunc(def models.ScorerDefinition) (codeFunc, error) {
	var args jsonSchemaArgs
	if err := decodeParams(def.Params, &args); err != nil {
		return nil, err
	}
	if args.Schema == nil {
		return nil, fmt.Errorf("json_schema scorer %q must have a 'schema' param", def.Name)
	}

	schema, err := compileSchema(args.Schema)
	if err != nil {
		return nil, fmt.Errorf("json_schema scorer %q: %w", def.Name, err)
	}

	return func(ec *Context) (models.VerdictValue, string, error) {
		// Round-trip through JSON so in-memory values validate the same
		// way serialized trace outputs would.
		raw, err := json.Marshal(ec.Outputs)
		if err != nil {
			return models.VerdictValue{}, "", fmt.Errorf("serializing outputs: %w", err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return models.VerdictValue{}, "", fmt.Errorf("parsing outputs: %w", err)
		}

		if err := schema.Validate(value); err != nil {
			return models.BoolValue(false), fmt.Sprintf("outputs do not match schema: %v", err), nil
		}
		return models.BoolValue(true), "outputs match schema", nil
	}, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	schemaJSON, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("serializing schema: %w", err)
	}

	var schemaValue any
	if err := json.Unmarshal(schemaJSON, &schemaValue); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaValue); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return schema, nil
}
