package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/agent-ledger-indexer/internal/curve"
	"github.com/p-blackswan/agent-ledger-indexer/internal/ledger"
)

// Manifest is the optional contracts file. It lets a deployment point at a
// different deployer or renamed contracts and override the default curve
// parameters. ${VAR} references are expanded from the environment.
//
//	deployer: ${DEPLOYER}
//	contracts:
//	  registry: agent-registry
//	  launchpad: agent-launchpad-v2
//	curve:
//	  virtual_stx: "10000000000"
//	  fee_bps: 100
type Manifest struct {
	Deployer  string           `yaml:"deployer"`
	Contracts ledger.Contracts `yaml:"contracts"`
	Curve     CurveManifest    `yaml:"curve"`
}

// CurveManifest holds curve overrides as decimal strings, since the amounts
// exceed what YAML integers reliably carry.
type CurveManifest struct {
	VirtualStx    string  `yaml:"virtual_stx"`
	TotalSupply   string  `yaml:"total_supply"`
	GraduationStx string  `yaml:"graduation_stx"`
	FeeBps        *uint64 `yaml:"fee_bps"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest parses manifest YAML after expanding environment variables.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &m); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &m, nil
}

// Resolve combines the environment config with an optional manifest into
// the contract set and default curve parameters the service runs with.
func Resolve(cfg *Config) (ledger.Contracts, curve.Params, error) {
	contracts := ledger.DefaultContracts(cfg.Deployer)
	params := curve.DefaultParams()
	if cfg.ContractsFile == "" {
		return contracts, params, nil
	}

	m, err := LoadManifest(cfg.ContractsFile)
	if err != nil {
		return contracts, params, err
	}
	contracts = m.apply(contracts)
	if params, err = m.Curve.apply(params); err != nil {
		return contracts, params, err
	}
	if err := params.Validate(); err != nil {
		return contracts, params, fmt.Errorf("manifest curve: %w", err)
	}
	return contracts, params, nil
}

func (m *Manifest) apply(c ledger.Contracts) ledger.Contracts {
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&c.Deployer, m.Deployer)
	override(&c.Registry, m.Contracts.Registry)
	override(&c.Vault, m.Contracts.Vault)
	override(&c.Reputation, m.Contracts.Reputation)
	override(&c.TaskBoard, m.Contracts.TaskBoard)
	override(&c.Launchpad, m.Contracts.Launchpad)
	override(&c.CurveRouter, m.Contracts.CurveRouter)
	return c
}

func (cm CurveManifest) apply(p curve.Params) (curve.Params, error) {
	set := func(name, raw string, dst *uint256.Int) error {
		if raw = strings.TrimSpace(raw); raw == "" {
			return nil
		}
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return fmt.Errorf("manifest curve.%s: %q: %w", name, raw, err)
		}
		*dst = *v
		return nil
	}
	if err := set("virtual_stx", cm.VirtualStx, &p.VirtualStx); err != nil {
		return p, err
	}
	if err := set("total_supply", cm.TotalSupply, &p.TotalSupply); err != nil {
		return p, err
	}
	if err := set("graduation_stx", cm.GraduationStx, &p.GraduationStx); err != nil {
		return p, err
	}
	if cm.FeeBps != nil {
		p.FeeBps = *cm.FeeBps
	}
	return p, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the environment value. Missing
// variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
