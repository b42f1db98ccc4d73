package application

import (
	"fmt"
	"slices"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// RegisterEngineValidators registers the custom validation functions used
// by EngineConfig struct tags: semver plus the domain tag validators.
// RegisterEngineValidators returns an error if any registration fails.
func RegisterEngineValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := domain.RegisterValidators(v); err != nil {
		return fmt.Errorf("failed to register domain validators: %w", err)
	}
	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	var rest string
	n, _ := fmt.Sscanf(value, "%d.%d.%d%s", &major, &minor, &patch, &rest)
	return n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// ValidateSemantics checks the rules struct tags cannot express: unique
// identifiers, resolvable references between pools, catalog and providers,
// and tags that parse. Every problem is collected into one ValidationError.
func ValidateSemantics(cfg *EngineConfig) error {
	verr := domain.NewValidationError("EngineConfig")

	providerIDs := make([]string, 0, len(cfg.Preferences.Providers))
	seenProviders := make(map[string]struct{})
	for _, p := range cfg.Preferences.Providers {
		if _, dup := seenProviders[p.ID]; dup {
			verr.AddErrorf("duplicate provider id %q", p.ID)
			continue
		}
		seenProviders[p.ID] = struct{}{}
		providerIDs = append(providerIDs, p.ID)
	}

	modelIDs := make([]string, 0, len(cfg.Catalog))
	seenModels := make(map[string]struct{})
	for _, m := range cfg.Catalog {
		if _, dup := seenModels[m.ID]; dup {
			verr.AddErrorf("duplicate model id %q", m.ID)
			continue
		}
		seenModels[m.ID] = struct{}{}
		modelIDs = append(modelIDs, m.ID)

		if _, err := domain.ParseCostModel(string(m.CostModel)); err != nil {
			verr.AddErrorf("model %q: %v", m.ID, err)
		}
		if _, ok := seenProviders[m.ProviderID]; !ok {
			verr.AddErrorf("model %q references unknown provider %q%s",
				m.ID, m.ProviderID, didYouMean(m.ProviderID, providerIDs))
		}
	}

	seenPools := make(map[string]struct{})
	for _, pool := range cfg.Bandits {
		if _, dup := seenPools[pool.Name]; dup {
			verr.AddErrorf("duplicate bandit pool %q", pool.Name)
			continue
		}
		seenPools[pool.Name] = struct{}{}

		if _, err := domain.ParseStrategy(string(pool.Selector.Strategy)); err != nil {
			verr.AddErrorf("pool %q: %v", pool.Name, err)
		}

		arms := make(map[string]struct{})
		for _, arm := range pool.Arms {
			id := arm.armID()
			if _, dup := arms[id]; dup {
				verr.AddErrorf("pool %q: duplicate arm %q", pool.Name, id)
			}
			arms[id] = struct{}{}
			if arm.Model != "" {
				if _, ok := seenModels[arm.Model]; !ok {
					verr.AddErrorf("pool %q: arm %q references unknown model %q%s",
						pool.Name, id, arm.Model, didYouMean(arm.Model, modelIDs))
				}
			}
		}
		if pool.FromCatalog {
			for _, id := range modelIDs {
				if _, dup := arms[id]; dup {
					verr.AddErrorf("pool %q: catalog model %q is also declared as an arm", pool.Name, id)
				}
			}
		}
	}

	if _, err := domain.ParseObjective(string(cfg.Optimizer.Objective)); err != nil {
		verr.AddErrorf("optimizer: %v", err)
	}
	if _, err := domain.ParseAlgorithm(string(cfg.Optimizer.Algorithm)); err != nil {
		verr.AddErrorf("optimizer: %v", err)
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// didYouMean returns a " (did you mean %q?)" hint naming the closest
// candidate within a small edit distance, or "" when nothing is close.
func didYouMean(value string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range slices.Sorted(slices.Values(candidates)) {
		d := levenshtein.ComputeDistance(value, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := max(2, len(value)/3)
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
