// Package config decodes project-level configuration (C10's calling
// context): named environments, their database DSNs, safety policy
// overrides, and collateral retention windows. Entity declarations
// themselves remain an external collaborator's concern; this package
// only covers the operational configuration the applier and CLI need.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/betagors/yama/internal/safety"
)

// EnvironmentConfig is one named deploy target's configuration.
type EnvironmentConfig struct {
	Name   string `toml:"-"`
	DSN    string `toml:"dsn"`
	Policy string `toml:"policy"`
}

// PolicyLabel resolves the environment's configured policy string to a
// safety.EnvironmentLabel, defaulting to Development when unset.
func (e EnvironmentConfig) PolicyLabel() safety.EnvironmentLabel {
	switch e.Policy {
	case string(safety.Staging):
		return safety.Staging
	case string(safety.Production):
		return safety.Production
	default:
		return safety.Development
	}
}

// CollateralConfig holds the retention windows decoded from the
// [collateral] table. They are decoded only: the applier does not read
// them, and uses its fixed 30-day defaults for shadows, data snapshots
// and backups.
type CollateralConfig struct {
	ShadowRetention string `toml:"shadow_retention"`
	BackupRetention string `toml:"backup_retention"`
	AuditRetention  string `toml:"audit_retention"`
}

// Project is the top-level `.yama.toml` document.
type Project struct {
	Project      projectMeta                  `toml:"project"`
	Environments map[string]EnvironmentConfig `toml:"environments"`
	Collateral   CollateralConfig             `toml:"collateral"`
}

type projectMeta struct {
	Name   string `toml:"name"`
	Plugin string `toml:"plugin"`
}

// Parser reads `.yama.toml` project configuration files.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile opens the file at path and parses it as project configuration.
func (p *Parser) ParseFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads TOML content from r and returns the decoded Project,
// validating every declared environment.
func (p *Parser) Parse(r io.Reader) (*Project, error) {
	var proj Project
	if _, err := toml.NewDecoder(r).Decode(&proj); err != nil {
		return nil, fmt.Errorf("config: decode error: %w", err)
	}

	for name, env := range proj.Environments {
		env.Name = name
		if env.DSN == "" {
			return nil, fmt.Errorf("config: environment %q: dsn is required", name)
		}
		proj.Environments[name] = env
	}

	return &proj, nil
}

// Environment looks up a named environment, reporting whether it exists.
func (p *Project) Environment(name string) (EnvironmentConfig, bool) {
	env, ok := p.Environments[name]
	return env, ok
}
