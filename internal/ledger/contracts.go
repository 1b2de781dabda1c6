package ledger

// Contracts names the deployer and the five indexed contracts. Fields hold
// bare contract names; ID joins one with the deployer.
type Contracts struct {
	Deployer    string `yaml:"deployer"`
	Registry    string `yaml:"registry"`
	Vault       string `yaml:"vault"`
	Reputation  string `yaml:"reputation"`
	TaskBoard   string `yaml:"task_board"`
	Launchpad   string `yaml:"launchpad"`
	CurveRouter string `yaml:"curve_router"`
}

// DefaultContracts returns the standard contract names under deployer.
func DefaultContracts(deployer string) Contracts {
	return Contracts{
		Deployer:    deployer,
		Registry:    "agent-registry",
		Vault:       "agent-vault",
		Reputation:  "reputation",
		TaskBoard:   "task-board",
		Launchpad:   "agent-launchpad",
		CurveRouter: "x402-curve-router-v2",
	}
}

// ID returns the fully qualified contract identifier deployer.name.
func (c Contracts) ID(name string) string {
	return c.Deployer + "." + name
}
