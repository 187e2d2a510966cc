package descriptor

import (
	_ "embed"
	"encoding/json"
	"errors"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/multierr"
)

//go:embed ecosystem.schema.json
var ecosystemSchema json.RawMessage
var ecosystemSchemaLoader = gojsonschema.NewBytesLoader(ecosystemSchema)

var compileSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(ecosystemSchemaLoader)
})

// validateSchema checks the raw shape of an ecosystem file. Every
// violation becomes a ConfigError keyed by its json path.
func validateSchema(data map[string]any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}

	if result.Valid() {
		return nil
	}

	var errs error
	for _, e := range result.Errors() {
		errs = multierr.Append(errs, newConfigError("", e.Field(), errors.New(e.Description())))
	}

	return errs
}
