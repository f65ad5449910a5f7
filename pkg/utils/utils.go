// Package utils holds helpers shared by the command line tools.
package utils

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GetSchemaFromConfig renders the JSON schema of config with every nested
// type inlined, so the schema of a single node config reads on its own.
func GetSchemaFromConfig(config any) (string, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	schema := reflector.Reflect(config)

	jsonSchemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}
