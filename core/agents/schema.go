package agents

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ConfigSchema returns the JSON schema of [Config], consumed by the
// dashboard's agent-configuration form for client-side validation.
func ConfigSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return reflector.Reflect(&Config{})
}

// ConfigSchemaJSON is the serialized form of [ConfigSchema], ready to be
// written to an HTTP response.
func ConfigSchemaJSON() ([]byte, error) {
	return json.MarshalIndent(ConfigSchema(), "", "  ")
}
