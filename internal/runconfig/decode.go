package runconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"video2notes/internal/services"
)

// Load reads a run file, choosing the decoder from its extension
// (.toml, .yaml/.yml, .json).
func Load(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read run config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return DecodeTOML(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	case ".json":
		return DecodeJSON(data)
	default:
		return RunConfig{}, services.NewConfigError(fmt.Sprintf("unsupported run config extension %q", filepath.Ext(path)))
	}
}

// DecodeJSON decodes data on top of Default, rejecting unknown keys.
func DecodeJSON(data []byte) (RunConfig, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return RunConfig{}, services.NewConfigError("parse run config: " + err.Error())
	}
	if dec.More() {
		return RunConfig{}, services.NewConfigError("parse run config: trailing data after object")
	}
	return cfg, nil
}

// DecodeTOML decodes data on top of Default, rejecting unknown keys.
func DecodeTOML(data []byte) (RunConfig, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return RunConfig{}, services.NewConfigError("parse run config: unknown keys:\n" + strict.String())
		}
		return RunConfig{}, services.NewConfigError("parse run config: " + err.Error())
	}
	return cfg, nil
}

// DecodeYAML decodes data on top of Default, rejecting unknown keys.
func DecodeYAML(data []byte) (RunConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return RunConfig{}, services.NewConfigError("parse run config: " + err.Error())
	}
	return cfg, nil
}
