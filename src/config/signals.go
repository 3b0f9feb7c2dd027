package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"guardian-agent/src/contracts"
)

// Signal is one error-signal pattern used by the log normalizer to locate
// candidate excerpts. CategoryHint optionally biases the keyword classifier.
type Signal struct {
	Name         string
	Pattern      *regexp.Regexp
	CategoryHint contracts.Category
}

// signalFile is the YAML shape of a patterns file.
type signalFile struct {
	Signals []struct {
		Name         string `yaml:"name"`
		Pattern      string `yaml:"pattern"`
		CategoryHint string `yaml:"category_hint"`
	} `yaml:"signals"`
}

// DefaultSignals returns the built-in error-signal patterns. These cover the
// common shapes of CI failures; installations with unusual toolchains
// override them via GUARDIAN_PATTERNS_FILE.
func DefaultSignals() []Signal {
	return []Signal{
		{Name: "error-token", Pattern: regexp.MustCompile(`(?i)(\berror\b\s*[:\[]|^error\b)`)},
		{Name: "failure-token", Pattern: regexp.MustCompile(`(?i)\b(failed|failure)\b`)},
		{Name: "fatal", Pattern: regexp.MustCompile(`(?i)\b(fatal|panic|critical)\b`)},
		{Name: "nonzero-exit", Pattern: regexp.MustCompile(`(?i)exit(ed with)?( status| code)? [1-9]\d*`)},
		{Name: "exception", Pattern: regexp.MustCompile(`(?i)\b(exception|traceback \(most recent call last\))`)},
		{Name: "connection", Pattern: regexp.MustCompile(`(?i)(ECONNRESET|ETIMEDOUT|connection (refused|reset|timed out))`), CategoryHint: contracts.CategoryTransient},
		{Name: "missing-module", Pattern: regexp.MustCompile(`(?i)(ModuleNotFoundError|No module named|Cannot find module|cannot find package)`), CategoryHint: contracts.CategoryDependencyMissing},
		{Name: "assertion", Pattern: regexp.MustCompile(`(?i)\b(assert(ion)?( ?error| failed)|tests? failed)\b`), CategoryHint: contracts.CategoryTestFailure},
	}
}

// LoadSignals parses a YAML patterns file. A file with no valid signals or a
// pattern that does not compile is a load error, not a silent fallback.
func LoadSignals(path string) ([]Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseSignals(data)
}

// ParseSignals parses patterns file content.
func ParseSignals(data []byte) ([]Signal, error) {
	var file signalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing patterns YAML: %w", err)
	}
	if len(file.Signals) == 0 {
		return nil, fmt.Errorf("patterns file defines no signals")
	}

	signals := make([]Signal, 0, len(file.Signals))
	for _, s := range file.Signals {
		if s.Pattern == "" {
			return nil, fmt.Errorf("signal %q has an empty pattern", s.Name)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signal %q: invalid pattern: %w", s.Name, err)
		}
		signals = append(signals, Signal{
			Name:         s.Name,
			Pattern:      re,
			CategoryHint: contracts.ParseCategory(s.CategoryHint),
		})
	}
	return signals, nil
}
