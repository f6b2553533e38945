package embeddings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// defaultChunkRecords is the recommended scan chunk size: the number of
// records read per bulk Read call during Search.
const defaultChunkRecords = 1024

// Config holds tunable parameters for Store and its Scanner.
//
// The zero value is not directly usable; Open always normalises it through
// DefaultConfig before applying it, so callers may pass a bare
// Options{Config: embeddings.Config{}} and get sensible defaults.
type Config struct {
	// ChunkRecords is the number of records read per bulk Read call during
	// Search. Recommended and default value is 1024.
	ChunkRecords int `json:"chunk_records,omitempty"`
}

// DefaultConfig returns the library's default configuration.
func DefaultConfig() Config {
	return Config{ChunkRecords: defaultChunkRecords}
}

// withDefaults fills any unset (zero-value) field with its default.
func (c Config) withDefaults() Config {
	if c.ChunkRecords <= 0 {
		c.ChunkRecords = defaultChunkRecords
	}

	return c
}

// LoadConfig reads a HuJSON (JSON-with-comments) document at path and
// merges it over DefaultConfig. HuJSON allows comments and trailing
// commas, the same relaxed JSON dialect used for other config files in
// this lineage of CLI tooling.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config %q: %v", ErrIo, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: parse config %q: %v", ErrBadArg, path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config %q: %v", ErrBadArg, path, err)
	}

	return cfg.withDefaults(), nil
}
