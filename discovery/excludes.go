package discovery

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DefaultExcludes are skipped in every run. Vendor-specific notebooks need
// credentials that CI does not provision.
var DefaultExcludes = []string{
	"**/vendor/*.ipynb",
	"**/third_party/*.ipynb",
}

// ExcludeConfig is the on-disk shape of an exclusion pattern file.
type ExcludeConfig struct {
	Excludes []string `yaml:"excludes"`
}

// LoadExcludes reads exclusion patterns from a YAML file and appends them to
// the defaults. An empty path returns just the defaults. The resulting list
// is loaded once at process start and never mutated.
func LoadExcludes(path string) ([]string, error) {
	patterns := append([]string{}, DefaultExcludes...)
	if path == "" {
		return patterns, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exclude file: %w", err)
	}
	var cfg ExcludeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse exclude file %s: %w", path, err)
	}

	patterns = append(patterns, cfg.Excludes...)
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclusion pattern %q", p)
		}
	}
	return nil
}
