package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/validation"
)

// SourceFile is a source definition loaded from a YAML file. Operators drop
// these under configs/sources/ and run `server sync seed` to provision them.
type SourceFile struct {
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	Kind        string `yaml:"kind"`
	AuthMode    string `yaml:"auth_mode"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	HeaderValue string `yaml:"header_value,omitempty"`
	Enabled     bool   `yaml:"enabled"`
}

// DefaultSourcesDir is where seed files live relative to the working
// directory.
const DefaultSourcesDir = "configs/sources"

// LoadSourceFiles reads every *.yaml/*.yml file in dir and returns the
// validated definitions. A file that fails validation is an error for the
// whole load; partial provisioning from a broken directory is worse than
// none.
func LoadSourceFiles(dir string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sources dir %s: %w", dir, err)
	}

	var files []SourceFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		var sf SourceFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if err := sf.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		files = append(files, sf)
	}
	return files, nil
}

// Validate applies defaults and checks the definition.
func (sf *SourceFile) Validate() error {
	if sf.Name == "" {
		return errors.New("name is required")
	}
	if err := validation.ValidateBaseURL(sf.BaseURL, "base_url", false); err != nil {
		return err
	}

	if sf.Kind == "" {
		sf.Kind = string(sources.KindHTTPIndex)
	}
	if sf.AuthMode == "" {
		sf.AuthMode = string(sources.AuthNone)
	}
	if !sources.AuthMode(sf.AuthMode).Valid() {
		return fmt.Errorf("unknown auth_mode %q", sf.AuthMode)
	}

	switch sources.AuthMode(sf.AuthMode) {
	case sources.AuthBasic:
		if sf.Username == "" || sf.Password == "" {
			return errors.New("basic auth requires username and password")
		}
	case sources.AuthBearerHeader:
		if sf.HeaderValue == "" {
			return errors.New("bearer-header auth requires header_value")
		}
	}
	return nil
}

// toCreateParams converts a validated SourceFile into repository params.
func (sf SourceFile) toCreateParams() sources.CreateParams {
	return sources.CreateParams{
		Name:     sf.Name,
		BaseURL:  sf.BaseURL,
		Kind:     sources.Kind(sf.Kind),
		AuthMode: sources.AuthMode(sf.AuthMode),
		Credentials: sources.Credentials{
			Username:    sf.Username,
			Password:    sf.Password,
			HeaderValue: sf.HeaderValue,
		},
		Enabled: sf.Enabled,
	}
}

// SeedSources creates any source from dir whose name is not yet in the
// registry. Existing sources are left alone: seeding is additive, it never
// overwrites cursors or operator edits. It returns the number of sources
// created.
func SeedSources(ctx context.Context, repo sources.Repository, dir string, logger zerolog.Logger) (int, error) {
	files, err := LoadSourceFiles(dir)
	if err != nil {
		return 0, err
	}

	existing, err := repo.List(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	byName := make(map[string]bool, len(existing))
	for _, src := range existing {
		byName[src.Name] = true
	}

	created := 0
	for _, sf := range files {
		if byName[sf.Name] {
			logger.Debug().Str("source", sf.Name).Msg("seed: already exists, skipping")
			continue
		}
		src, err := repo.Create(ctx, sf.toCreateParams())
		if err != nil {
			return created, fmt.Errorf("create %q: %w", sf.Name, err)
		}
		logger.Info().Str("source", sf.Name).Str("source_id", src.ID).Msg("seed: source created")
		created++
	}
	return created, nil
}
