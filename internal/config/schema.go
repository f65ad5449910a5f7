package config

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
)

// GenerateSchema generates the JSON schema of a strategy config document.
func GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeOf(Duration(0)):
				return &jsonschema.Schema{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`}
			case reflect.TypeOf(json.RawMessage{}):
				return &jsonschema.Schema{Type: "object"}
			case reflect.TypeOf(vts.Broker("")):
				return &jsonschema.Schema{Type: "string", Enum: vts.AllBrokers}
			}

			return nil
		},
	}

	schema := reflector.Reflect(&StrategyConfig{})
	schema.Title = "strategy-config"
	schema.Description = "Configuration schema of a strategy graph"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON renders GenerateSchema as indented JSON.
func GenerateSchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}
