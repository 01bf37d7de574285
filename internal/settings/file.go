package settings

import (
	"fmt"
	"strings"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"

	"github.com/spf13/viper"
)

// LoadFile reads a YAML or JSON settings file with an optional "settings"
// section and an optional "fields" section replacing the built-in catalog.
// Keys missing from the file keep the defaults derived from the catalog.
func LoadFile(path string) (Settings, fields.Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, nil, apperrors.NewConfigurationError(
			fmt.Sprintf("failed to read settings file %s", path), err)
	}

	catalog := fields.DefaultCatalog()
	if v.IsSet("fields") {
		var custom fields.Catalog
		if err := v.UnmarshalKey("fields", &custom); err != nil {
			return Settings{}, nil, apperrors.NewConfigurationError("invalid field catalog", err)
		}
		if err := custom.Validate(); err != nil {
			return Settings{}, nil, apperrors.NewConfigurationError("invalid field catalog", err)
		}
		catalog = custom
	}

	s := Default(catalog)
	if v.IsSet("settings") {
		if v.IsSet("settings.enabled_outputs") {
			s.Enabled = nil
		}
		if err := v.UnmarshalKey("settings", &s); err != nil {
			return Settings{}, nil, apperrors.NewConfigurationError("invalid settings", err)
		}
	}
	s.Instructions = canonicalKeys(catalog, s.Instructions)
	if s.Concurrency == 0 {
		s.Concurrency = 1
	}
	if err := s.Validate(catalog); err != nil {
		return Settings{}, nil, err
	}
	s.Canonicalize(catalog)
	return s, catalog, nil
}

// canonicalKeys restores the catalog spelling of instruction keys, which
// viper lowercases.
func canonicalKeys(catalog fields.Catalog, in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]string, len(in))
	for key, text := range in {
		name := key
		for _, d := range catalog {
			if strings.EqualFold(d.Name, key) {
				name = d.Name
				break
			}
		}
		out[name] = text
	}
	return out
}
