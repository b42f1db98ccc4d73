package application

import (
	"time"

	"github.com/Giftedx/crew-sub014/internal/bandit"
	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/optimizer"
	"github.com/Giftedx/crew-sub014/internal/preference"
)

// DefaultDecisionCapacity bounds the pending-decision table when the
// configuration leaves it unset.
const DefaultDecisionCapacity = 10000

// EngineConfig is the complete declarative description of a selection
// engine and the primary configuration entry point for the system.
// Use EngineConfig to declare bandit pools, the provider set, the model
// catalog and the optimizer defaults in one YAML document.
type EngineConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the engine
	// including name, tags, and labels for organization and discovery.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Bandits declares the named selection pools.
	Bandits []PoolConfig `yaml:"bandits" validate:"max=100,dive"`
	// Preferences configures the provider preference learner.
	Preferences PreferencesConfig `yaml:"preferences"`
	// Optimizer holds the default optimization settings.
	Optimizer optimizer.Config `yaml:"optimizer"`
	// Catalog lists the models available to the optimizer.
	Catalog []domain.ModelSpecification `yaml:"catalog" validate:"max=1000,dive"`
	// Decisions controls how long selections wait for outcome reports.
	Decisions DecisionConfig `yaml:"decisions"`
	// Budget caps spend across optimizer recommendations. It is enforced
	// by optimizer middleware, not by the engine itself.
	Budget BudgetConfig `yaml:"budget"`
}

// Metadata provides descriptive information about an engine configuration
// to support organization, discovery, and operational management.
type Metadata struct {
	// Name is the human-readable identifier for this engine.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description explains what the engine routes.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels for filtering and grouping.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs for integration with external
	// systems.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// PoolConfig declares one bandit pool: its strategy settings and the arms
// registered at startup.
type PoolConfig struct {
	// Name identifies the pool in Engine.Select.
	Name string `yaml:"name" validate:"required,min=1,max=100"`
	// Selector carries the strategy and its tuning.
	Selector bandit.Config `yaml:",inline"`
	// Arms are registered in order; registration order breaks ties.
	Arms []ArmConfig `yaml:"arms" validate:"max=1000,dive"`
	// FromCatalog registers every catalog model as an arm after Arms.
	FromCatalog bool `yaml:"from_catalog"`
}

// ArmConfig declares one arm of a pool.
type ArmConfig struct {
	// ID is the arm identifier. When empty it defaults to Model.
	ID string `yaml:"id" validate:"required_without=Model,max=200"`
	// Name is a display name.
	Name string `yaml:"name" validate:"max=255"`
	// Model optionally links the arm to a catalog model so outcomes also
	// feed the preference learner and the optimizer.
	Model string `yaml:"model,omitempty" validate:"max=200"`
	// Metadata is free-form data attached to the arm.
	Metadata map[string]string `yaml:"metadata,omitempty" validate:"max=50"`
}

// armID returns the effective arm identifier.
func (a ArmConfig) armID() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Model
}

// PreferencesConfig configures the preference learner and declares the
// providers it tracks.
type PreferencesConfig struct {
	Learner preference.Config `yaml:",inline"`
	// Providers are registered at startup. Every catalog model's provider
	// must appear here.
	Providers []ProviderConfig `yaml:"providers" validate:"max=200,dive"`
}

// ProviderConfig declares one provider.
type ProviderConfig struct {
	ID       string            `yaml:"id" validate:"required,min=1,max=100"`
	Name     string            `yaml:"name" validate:"max=255"`
	Metadata map[string]string `yaml:"metadata,omitempty" validate:"max=50"`
}

// DecisionConfig bounds the table of selections awaiting an outcome.
type DecisionConfig struct {
	// Capacity is the maximum number of pending decisions; the least
	// recently issued are evicted first. Default: 10000.
	Capacity int `yaml:"capacity" validate:"min=0,max=10000000"`
	// TTL expires pending decisions. Zero keeps them until evicted.
	TTL time.Duration `yaml:"ttl" validate:"min=0"`
}

// BudgetConfig defines spend limits for the optimizer.
type BudgetConfig struct {
	// MaxSpend is the total cost that may be reported before every paid
	// model becomes infeasible. Zero means unlimited.
	MaxSpend float64 `yaml:"max_spend" validate:"finite,min=0"`
	// MaxTokens limits the cumulative token volume optimized for.
	// Zero means unlimited.
	MaxTokens int64 `yaml:"max_tokens" validate:"min=0"`
}

func (c DecisionConfig) withDefaults() DecisionConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultDecisionCapacity
	}
	return c
}
