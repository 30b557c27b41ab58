package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads an optional YAML configuration file, the layer spec.md §A
// adds on top of the env-var-only surface spec.md §6 defines. A missing path
// is not an error — it returns a zero Config so MergeFile leaves every field
// at its env/default value.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	return LoadFromReader(f)
}

// LoadFromReader decodes a YAML config from r without touching the
// filesystem, used directly by tests.
func LoadFromReader(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if err == io.EOF {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Load is the full resolution order this module uses: defaults, then an
// optional YAML file, then environment variables (which always win — see
// MergeFile). Env vars that were never set leave the file/default value in
// place, since envOverrides only reports fields actually present in the
// environment.
func Load(filePath string) (Config, error) {
	fileCfg, err := LoadFile(filePath)
	if err != nil {
		return Config{}, err
	}

	merged := MergeFile(Default(), fileCfg)
	final := MergeFile(merged, envOverrides())

	if key := os.Getenv("LOKUTOR_API_KEY"); key != "" {
		final.LokutorAPIKey = key
	}
	if keys := os.Getenv("WS_TTS_API_KEYS"); keys != "" {
		final.APIKeys = splitCSV(keys)
	}

	return final, nil
}
