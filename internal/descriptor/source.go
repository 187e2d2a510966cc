package descriptor

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/util"
)

// Source provides the desired set of descriptors.
type Source interface {
	Descriptors() ([]*Descriptor, error)
}

// FileSource reads descriptors from an ecosystem file on every call.
type FileSource struct {
	// Path is the ecosystem file
	Path string

	// LogDir holds default log files
	LogDir string

	Log *zap.Logger
}

func (s *FileSource) Descriptors() ([]*Descriptor, error) {
	path, err := filepath.Abs(s.Path)
	if err != nil {
		return nil, err
	}

	apps, err := Load(path)
	if err != nil {
		return nil, err
	}

	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	for _, app := range apps {
		if watchEnabled(app.Watch) {
			log.Warn("watch is not supported and will be ignored", zap.String("app", app.Name))
		}
	}

	return ValidateAll(apps, ValidateOptions{
		BaseDir: filepath.Dir(path),
		LogDir:  s.LogDir,
	})
}

func watchEnabled(v any) bool {
	switch w := v.(type) {
	case bool:
		return w
	case string:
		return util.Truthy(w)
	case []any:
		return len(w) > 0
	default:
		return false
	}
}
