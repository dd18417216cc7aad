// Package packs loads policy packs: YAML files that seed the policy store
// at startup and on change. Packs let compliance teams version policies in
// git instead of driving the API by hand.
package packs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vorpalhq/vorpal/internal/models"
)

// Pack is one YAML pack file: a named group of policies.
type Pack struct {
	Name     string       `yaml:"name"`
	Policies []PackPolicy `yaml:"policies"`
}

// PackPolicy mirrors models.Policy minus server-assigned fields.
type PackPolicy struct {
	Name            string                 `yaml:"name"`
	Description     string                 `yaml:"description"`
	Version         string                 `yaml:"version"`
	Enabled         *bool                  `yaml:"enabled"`
	MatchCriteria   map[string]interface{} `yaml:"match_criteria"`
	Rules           []models.Rule          `yaml:"rules"`
	DefaultSeverity string                 `yaml:"default_severity"`
	Regulation      string                 `yaml:"regulation"`
	Metadata        map[string]interface{} `yaml:"metadata"`
}

// Seeder is the store-facing surface the loader needs; the service
// implements it with upsert-by-name semantics.
type Seeder interface {
	SeedPolicy(ctx context.Context, p *models.Policy) (*models.Policy, error)
}

// Loader reads pack files from a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger.With("component", "packs")}
}

// Load parses every .yaml/.yml file under the pack directory. Files that
// fail to parse are skipped with a warning so one broken pack cannot take
// out the rest.
func (l *Loader) Load() ([]models.Policy, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		return nil, fmt.Errorf("stat pack dir %q: %w", l.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pack path %q is not a directory", l.dir)
	}

	var policies []models.Policy
	err = filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		loaded, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable pack file", "path", path, "error", err)
			return nil
		}
		policies = append(policies, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk pack dir %q: %w", l.dir, err)
	}

	l.logger.Info("policy packs loaded", "dir", l.dir, "policies", len(policies))
	return policies, nil
}

func (l *Loader) loadFile(path string) ([]models.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pack file: %w", err)
	}
	if pack.Name == "" {
		pack.Name = filepath.Base(path)
	}

	out := make([]models.Policy, 0, len(pack.Policies))
	for _, pp := range pack.Policies {
		if pp.Name == "" {
			l.logger.Warn("skipping unnamed policy in pack", "path", path)
			continue
		}
		enabled := true
		if pp.Enabled != nil {
			enabled = *pp.Enabled
		}
		severity := models.Severity(pp.DefaultSeverity)
		if severity == "" {
			severity = models.SeverityError
		}
		out = append(out, models.Policy{
			Name:            pp.Name,
			Description:     pp.Description,
			Version:         pp.Version,
			Enabled:         enabled,
			MatchCriteria:   models.MatchCriteria(pp.MatchCriteria),
			Rules:           pp.Rules,
			DefaultSeverity: severity,
			Regulation:      pp.Regulation,
			PackName:        pack.Name,
			CreatedBy:       "policy-pack",
			Metadata:        pp.Metadata,
		})
	}
	return out, nil
}

// Seed loads the pack directory and upserts every policy by name.
func (l *Loader) Seed(ctx context.Context, seeder Seeder) error {
	policies, err := l.Load()
	if err != nil {
		return err
	}
	for i := range policies {
		if _, err := seeder.SeedPolicy(ctx, &policies[i]); err != nil {
			l.logger.Error("seed policy failed", "policy", policies[i].Name, "error", err)
		}
	}
	return nil
}
