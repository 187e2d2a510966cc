package descriptor

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
)

// ParseSize parses a human readable memory size such as "1G", "150M" or
// "512MB" into bytes. Units are binary, "1K" is 1024 bytes.
func ParseSize(s string) (uint64, error) {
	size, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}

	if size <= 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrNotPositive)
	}

	return uint64(size), nil
}
