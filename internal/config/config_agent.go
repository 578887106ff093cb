package config

// AgentConfig shapes the turn engine's behavior: autonomy, budgets, and
// the credential provider announced in the system prompt.
type AgentConfig struct {
	// SystemPrompt overrides the built-in base prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Autonomy is the guardrail level 0..4:
	// 0 manual, 1 assisted, 2 supervised, 3 autonomous, 4 full-auto.
	Autonomy int `yaml:"autonomy"`

	// ApprovalThreshold is the risk level (0..10) at which assisted and
	// supervised autonomy escalate. Default 7.
	ApprovalThreshold int `yaml:"approval_threshold"`

	// ApprovalTimeoutSecs bounds how long an escalated tool call waits
	// for the operator. Default 120.
	ApprovalTimeoutSecs int `yaml:"approval_timeout_secs"`

	// DailyBudgetUSD caps model spend per UTC day. 0 disables.
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`

	// MaxToolCallsPerTurn caps tool dispatches in one turn. 0 disables.
	MaxToolCallsPerTurn int `yaml:"max_tool_calls_per_turn"`

	// MaxIterations bounds think-act iterations per turn. 0 uses the
	// runtime default.
	MaxIterations int `yaml:"max_iterations"`

	// TurnDeadlineSecs bounds a turn's wall clock. 0 disables.
	TurnDeadlineSecs int `yaml:"turn_deadline_secs"`

	// DisableLazyStopGuard turns off the description-instead-of-doing
	// continuation heuristic.
	DisableLazyStopGuard bool `yaml:"disable_lazy_stop_guard"`

	// Credentials describes the secret provider announced to the model.
	Credentials CredentialsConfig `yaml:"credentials"`
}

// CredentialsConfig names the credential provider and its operating mode.
type CredentialsConfig struct {
	// Provider is the credential tool family, e.g. "1password".
	// Empty or "none" omits the credentials prompt section.
	Provider string `yaml:"provider"`

	// DefaultVault scopes lookups when the provider supports vaults.
	DefaultVault string `yaml:"default_vault"`

	// ServiceAccount selects headless mode; false means the desktop app
	// with biometric unlock.
	ServiceAccount bool `yaml:"service_account"`
}
