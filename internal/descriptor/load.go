package descriptor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads the apps of a JSON or YAML ecosystem file. The file's raw
// shape is checked against the ecosystem schema before decoding.
func Load(path string) ([]AppConfig, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to read ecosystem file %s: %w", path, err)
	}

	if err := validateSchema(k.Raw()); err != nil {
		return nil, err
	}

	var apps []AppConfig
	if err := k.UnmarshalWithConf("apps", &apps, koanf.UnmarshalConf{Tag: "conf"}); err != nil {
		return nil, fmt.Errorf("failed to decode apps: %w", err)
	}

	return apps, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported ecosystem file format %q", filepath.Ext(path))
	}
}
