// Package config implements the enumerated configuration surface from
// spec.md §6.3, following the teacher's Load/DefaultConfig/applyDefaults
// pattern (internal/config/config.go in daydemir/ralph) but binding every
// variable through viper's environment layer with the CASCADE_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the full enumerated surface of spec.md §6.3.
type Config struct {
	MaxAttempts       int `mapstructure:"max_attempts"`
	MaxDiffLines      int `mapstructure:"max_diff_lines"`
	StaleTaskHours    int `mapstructure:"stale_task_hours"`
	MaxSubtaskAttempts int `mapstructure:"max_subtask_attempts"`

	MinBatchSize        int  `mapstructure:"min_batch_size"`
	MaxBatchSize         int  `mapstructure:"max_batch_size"`
	BatchTimeoutMinutes  int  `mapstructure:"batch_timeout_minutes"`
	EnableBatchMerge     bool `mapstructure:"enable_batch_merge"`

	UseForeman        bool `mapstructure:"use_foreman"`
	ForemanMaxAttempts int `mapstructure:"foreman_max_attempts"`

	ValidateDiff    bool `mapstructure:"validate_diff"`
	ExpandImports   bool `mapstructure:"expand_imports"`
	ImportDepth     int  `mapstructure:"import_depth"`
	MaxRelatedFiles int  `mapstructure:"max_related_files"`

	UseAgenticLoop                bool    `mapstructure:"use_agentic_loop"`
	AgenticLoopMaxIterations      int     `mapstructure:"agentic_loop_max_iterations"`
	AgenticLoopMaxReplans         int     `mapstructure:"agentic_loop_max_replans"`
	AgenticLoopConfidenceThreshold float64 `mapstructure:"agentic_loop_confidence_threshold"`

	EnableLearning       bool `mapstructure:"enable_learning"`
	EnableKnowledgeGraph bool `mapstructure:"enable_knowledge_graph"`
	EnableRAG            bool `mapstructure:"enable_rag"`
	CommentOnFailure     bool `mapstructure:"comment_on_failure"`

	// LocalTestingMode is not part of spec.md §6.3's enumerated list but is
	// required to implement §4.10's Testing handler, which explicitly
	// branches on "when local-testing is enabled" vs CI mode.
	LocalTestingMode bool `mapstructure:"local_testing_mode"`

	// MultiAgentCoding/MultiAgentFixing gate the MultiAgentRunner fan-out
	// (spec.md §4.6: "when enabled for a stage").
	MultiAgentCoding bool `mapstructure:"multi_agent_coding"`
	MultiAgentFixing bool `mapstructure:"multi_agent_fixing"`

	// EnableVisualTesting gates the optional VisualTesting phase; spec.md
	// §4.1's transition table allows TestsPassed to go straight to Reviewing
	// as well as through VisualTesting, but never names the condition that
	// decides between them, so this flag makes the choice explicit.
	EnableVisualTesting bool `mapstructure:"enable_visual_testing"`

	// Connection strings for the persistence-store reference implementations;
	// not part of spec.md's enumerated list but required to stand the
	// Postgres/Redis-backed Store up (internal/store/postgres, internal/store
	// locker).
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`

	ModelSelection ModelSelectionConfig `mapstructure:"model_selection"`
}

// ModelSelectionConfig is the stage x complexity x effort table the
// ModelSelector reads at startup (spec.md §4.5: "read from config at startup
// with hard-coded defaults", "individual entries are keyed by stage x
// complexity x effort"). Fixer selection is independent of complexity
// (spec.md §4.5: "always starts from a strong reasoning tier regardless of
// complexity"), so only Coder carries the complexity dimension.
type ModelSelectionConfig struct {
	Coder ComplexityModels `mapstructure:"coder"`
	Fixer StageModels      `mapstructure:"fixer"`
}

// ComplexityModels names the effort-indexed tier table for each complexity
// class that has its own row (XS/S/M). The ModelSelector resolves L, and an
// XL subtask, against the M row.
type ComplexityModels struct {
	XS StageModels `mapstructure:"xs"`
	S  StageModels `mapstructure:"s"`
	M  StageModels `mapstructure:"m"`
}

// StageModels names the model at each escalation tier for a stage/complexity
// pair, indexed by effort.
type StageModels struct {
	Low    TierModels `mapstructure:"low"`
	Medium TierModels `mapstructure:"medium"`
	High   TierModels `mapstructure:"high"`
}

// TierModels names the model used at attempt 0, attempt 1 (escalated), and
// attempt >= 2 (highest-capability).
type TierModels struct {
	Base      string `mapstructure:"base"`
	Escalated string `mapstructure:"escalated"`
	Highest   string `mapstructure:"highest"`
}

const envPrefix = "CASCADE"

// Load reads .cascade/config.yaml under workspaceDir if present, falling back to
// DefaultConfig(), then overlays environment variables bound under the
// CASCADE_ prefix, exactly mirroring the teacher's fallback-then-apply-
// defaults shape.
func Load(workspaceDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	bindEnv(v)

	configPath := filepath.Join(workspaceDir, ".cascade", "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// bindEnv registers every §6.3 key so viper.AutomaticEnv picks up
// CASCADE_MAX_ATTEMPTS, CASCADE_MAX_DIFF_LINES, etc. even when no YAML key
// of that name is present in the config file.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"max_attempts", "max_diff_lines", "stale_task_hours", "max_subtask_attempts",
		"min_batch_size", "max_batch_size", "batch_timeout_minutes", "enable_batch_merge",
		"use_foreman", "foreman_max_attempts",
		"validate_diff", "expand_imports", "import_depth", "max_related_files",
		"use_agentic_loop", "agentic_loop_max_iterations", "agentic_loop_max_replans",
		"agentic_loop_confidence_threshold",
		"enable_learning", "enable_knowledge_graph", "enable_rag", "comment_on_failure",
		"local_testing_mode", "multi_agent_coding", "multi_agent_fixing", "enable_visual_testing",
		"postgres_dsn", "redis_addr",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// DefaultConfig returns the config with every §6.3 default applied.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:        3,
		MaxDiffLines:       700,
		StaleTaskHours:     24,
		MaxSubtaskAttempts: 2,

		MinBatchSize:        2,
		MaxBatchSize:        10,
		BatchTimeoutMinutes: 30,
		EnableBatchMerge:    true,

		UseForeman:         false,
		ForemanMaxAttempts: 2,

		ValidateDiff:    true,
		ExpandImports:   true,
		ImportDepth:     1,
		MaxRelatedFiles: 10,

		UseAgenticLoop:                 false,
		AgenticLoopMaxIterations:       5,
		AgenticLoopMaxReplans:          2,
		AgenticLoopConfidenceThreshold: 0.6,

		EnableLearning:       true,
		EnableKnowledgeGraph: false,
		EnableRAG:            false,
		CommentOnFailure:     false,

		ModelSelection: DefaultModelSelection(),
	}
}

// DefaultModelSelection is the hard-coded default table read at startup
// (spec.md §4.5); repo-specific overrides come from .cascade/config.yaml. Each
// complexity class's attempt-0 base model follows spec.md §4.5 literally:
// XS is effort-indexed nano/small/medium, S is an effort-indexed small
// model, M is an effort-indexed mid-tier model; every class escalates to
// strong-reasoning at attempt 1 and highest at attempt >= 2.
func DefaultModelSelection() ModelSelectionConfig {
	tiers := func(base, escalated, highest string) TierModels {
		return TierModels{Base: base, Escalated: escalated, Highest: highest}
	}
	stage := func(low, medium, high TierModels) StageModels {
		return StageModels{Low: low, Medium: medium, High: high}
	}
	return ModelSelectionConfig{
		Coder: ComplexityModels{
			XS: stage(
				tiers("nano", "small", "highest"),
				tiers("small", "medium", "highest"),
				tiers("medium", "strong-reasoning", "highest"),
			),
			S: stage(
				tiers("small", "medium", "highest"),
				tiers("small", "strong-reasoning", "highest"),
				tiers("medium", "strong-reasoning", "highest"),
			),
			M: stage(
				tiers("medium", "strong-reasoning", "highest"),
				tiers("medium", "strong-reasoning", "highest"),
				tiers("strong-reasoning", "strong-reasoning", "highest"),
			),
		},
		Fixer: stage(
			tiers("strong-reasoning", "strong-reasoning", "highest"),
			tiers("strong-reasoning", "strong-reasoning", "highest"),
			tiers("strong-reasoning", "strong-reasoning", "highest"),
		),
	}
}

// applyDefaults fills zero-value fields, following the teacher's
// applyDefaults(cfg) shape exactly (config.go in daydemir/ralph).
func applyDefaults(cfg *Config) {
	d := DefaultConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.MaxDiffLines == 0 {
		cfg.MaxDiffLines = d.MaxDiffLines
	}
	if cfg.StaleTaskHours == 0 {
		cfg.StaleTaskHours = d.StaleTaskHours
	}
	if cfg.MaxSubtaskAttempts == 0 {
		cfg.MaxSubtaskAttempts = d.MaxSubtaskAttempts
	}
	if cfg.MinBatchSize == 0 {
		cfg.MinBatchSize = d.MinBatchSize
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = d.MaxBatchSize
	}
	if cfg.BatchTimeoutMinutes == 0 {
		cfg.BatchTimeoutMinutes = d.BatchTimeoutMinutes
	}
	if cfg.ForemanMaxAttempts == 0 {
		cfg.ForemanMaxAttempts = d.ForemanMaxAttempts
	}
	if cfg.ImportDepth == 0 {
		cfg.ImportDepth = d.ImportDepth
	}
	if cfg.MaxRelatedFiles == 0 {
		cfg.MaxRelatedFiles = d.MaxRelatedFiles
	}
	if cfg.AgenticLoopMaxIterations == 0 {
		cfg.AgenticLoopMaxIterations = d.AgenticLoopMaxIterations
	}
	if cfg.AgenticLoopMaxReplans == 0 {
		cfg.AgenticLoopMaxReplans = d.AgenticLoopMaxReplans
	}
	if cfg.AgenticLoopConfidenceThreshold == 0 {
		cfg.AgenticLoopConfidenceThreshold = d.AgenticLoopConfidenceThreshold
	}
	if cfg.ModelSelection.Coder.XS.Low.Base == "" {
		cfg.ModelSelection = d.ModelSelection
	}
}
