package checkpoint

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce  sync.Once
	schemaSet   map[Kind]*gojsonschema.Schema
	schemaError error
)

func loadSchemas() (map[Kind]*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaSet = make(map[Kind]*gojsonschema.Schema)
		for _, kind := range []Kind{KindROI, KindSlides, KindSpeakers} {
			raw, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
			if err != nil {
				schemaError = fmt.Errorf("read %s schema: %w", kind, err)
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				schemaError = fmt.Errorf("compile %s schema: %w", kind, err)
				return
			}
			schemaSet[kind] = schema
		}
	})
	return schemaSet, schemaError
}

// validatePayload checks a resolution against the schema for kind and returns
// a readable list of violations.
func validatePayload(kind Kind, payload []byte) error {
	schemas, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("no schema for checkpoint kind %q", kind)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		problems = append(problems, field+": "+desc.Description())
	}
	return errors.New(strings.Join(problems, "; "))
}
