package schemas

import (
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/optimization"
)

// Schema names accepted by Schema and Validate.
const (
	NameRunResult = "run-result"
	NameInputs    = "inputs"
	NameBatch     = "batch"
)

var documents = map[string]func() any{
	NameRunResult: func() any { return &optimization.RunResult{} },
	NameInputs:    func() any { return &inputs.UserInputSet{} },
	NameBatch:     func() any { return &[]optimization.BatchItem{} },
}

var (
	cacheMu sync.Mutex
	cache   = map[string][]byte{}
)

// Names lists the schemas that can be reflected.
func Names() []string {
	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the JSON Schema for a named document type. Schemas are reflected once and cached.
func Schema(name string) ([]byte, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if data, ok := cache[name]; ok {
		return data, nil
	}

	newDoc, ok := documents[name]
	if !ok {
		return nil, &SchemaLoadError{Name: name, Message: "unknown schema"}
	}

	data, err := json.MarshalIndent(reflectSchema(newDoc()), "", "  ")
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Message: "failed to encode reflected schema", Cause: err}
	}
	cache[name] = data
	return data, nil
}

// RunResultSchema returns the schema for serialized run results.
func RunResultSchema() ([]byte, error) {
	return Schema(NameRunResult)
}

func reflectSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Mapper:         mapType,
	}
	schema := r.Reflect(v)
	// gojsonschema understands up to draft-07; the reflected keywords are compatible.
	schema.Version = ""
	return schema
}

func mapType(t reflect.Type) *jsonschema.Schema {
	if t == reflect.TypeOf(uuid.UUID{}) {
		return &jsonschema.Schema{Type: "string", Format: "uuid"}
	}
	return nil
}
