// Package qualityprofile is the QualityProfile catalog: the built-in
// profiles seeded by SeedBuiltins plus the CRUD and default-flip
// operations a custom profile may exercise.
package qualityprofile

import (
	"context"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Catalog owns the QualityProfile lifecycle: seeding built-ins once,
// then mediating every create/update/delete/duplicate/set-default
// call against the repository's invariants.
type Catalog struct {
	repo repository.QualityProfileRepository
}

// New builds a Catalog over repo.
func New(repo repository.QualityProfileRepository) *Catalog {
	return &Catalog{repo: repo}
}

// builtins is the fixed seed set: xtts_fast favors speed, xtts_balanced
// is the shipped default, xtts_high_quality favors fidelity.
func builtins() []models.QualityProfile {
	return []models.QualityProfile{
		{
			ID: models.BuiltinFastID, Name: "Fast", Description: "Lower quality, fastest inference.",
			Engine: models.EngineXTTS, IsDefault: false, IsBuiltin: true,
			Parameters: models.QualityParameters{
				Temperature: 0.7, TopP: 0.8, TopK: 30, RepetitionPenalty: 2.0,
				LengthPenalty: 1.0, Speed: 1.1, EnableTextSplitting: true, Denoise: false,
			},
		},
		{
			ID: models.BuiltinBalancedID, Name: "Balanced", Description: "The shipped default: a balance of speed and fidelity.",
			Engine: models.EngineXTTS, IsDefault: true, IsBuiltin: true,
			Parameters: models.QualityParameters{
				Temperature: 0.75, TopP: 0.85, TopK: 50, RepetitionPenalty: 2.0,
				LengthPenalty: 1.0, Speed: 1.0, EnableTextSplitting: true, Denoise: false,
			},
		},
		{
			ID: models.BuiltinHighQualityID, Name: "High Quality", Description: "Slower inference, highest fidelity.",
			Engine: models.EngineXTTS, IsDefault: false, IsBuiltin: true,
			Parameters: models.QualityParameters{
				Temperature: 0.8, TopP: 0.9, TopK: 70, RepetitionPenalty: 2.5,
				LengthPenalty: 1.0, Speed: 0.95, EnableTextSplitting: true, Denoise: true,
			},
		},
	}
}

// SeedBuiltins creates every built-in profile that does not already
// exist. Safe to call on every process start.
func (c *Catalog) SeedBuiltins(ctx context.Context) error {
	for _, profile := range builtins() {
		existing, err := c.repo.FindByID(ctx, profile.ID)
		if err == nil && existing != nil {
			continue
		}
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if err := c.repo.Create(ctx, &profile); err != nil {
			return err
		}
	}
	return nil
}

// Create persists a new custom profile, rejecting ids that collide
// with the reserved "xtts_" builtin prefix and parameters outside
// their accepted ranges.
func (c *Catalog) Create(ctx context.Context, profile *models.QualityProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if hasReservedPrefix(profile.ID) {
		return resilience.New(resilience.KindConflict, "profile id uses the reserved builtin prefix").
			WithField("id", profile.ID)
	}
	if err := profile.Parameters.Validate(); err != nil {
		return resilience.Wrap(resilience.KindValidation, "invalid quality parameters", err)
	}
	profile.IsBuiltin = false
	profile.IsDefault = false
	return c.repo.Create(ctx, profile)
}

func hasReservedPrefix(id string) bool {
	return len(id) >= len(models.ReservedIDPrefix) && id[:len(models.ReservedIDPrefix)] == models.ReservedIDPrefix
}

// Get fetches a profile by id.
func (c *Catalog) Get(ctx context.Context, id string) (*models.QualityProfile, error) {
	profile, err := c.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, resilience.New(resilience.KindNotFound, "quality profile not found").WithField("id", id)
		}
		return nil, err
	}
	return profile, nil
}

// List returns every profile for engine, or every profile if engine is empty.
func (c *Catalog) List(ctx context.Context, engine string) ([]models.QualityProfile, error) {
	if engine == "" {
		profiles, _, err := c.repo.List(ctx, 0, 1000)
		return profiles, err
	}
	return c.repo.ListByEngine(ctx, engine)
}

// Update mutates a custom profile's name, description, or parameters.
// Built-in profiles cannot be mutated, and the patched parameters must
// still fall within their accepted ranges.
func (c *Catalog) Update(ctx context.Context, id string, patch func(*models.QualityProfile)) (*models.QualityProfile, error) {
	profile, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile.IsBuiltin {
		return nil, resilience.New(resilience.KindForbidden, "built-in quality profiles cannot be modified").WithField("id", id)
	}
	patch(profile)
	if err := profile.Parameters.Validate(); err != nil {
		return nil, resilience.Wrap(resilience.KindValidation, "invalid quality parameters", err)
	}
	if err := c.repo.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Delete removes a custom profile. Built-ins and the current default
// for their engine cannot be deleted.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	profile, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if profile.IsBuiltin {
		return resilience.New(resilience.KindForbidden, "built-in quality profiles cannot be deleted").WithField("id", id)
	}
	if profile.IsDefault {
		return resilience.New(resilience.KindConflict, "cannot delete the default profile for an engine").WithField("id", id)
	}
	return c.repo.Delete(ctx, id)
}

// Duplicate clones profile into a new custom profile with a fresh id,
// never copying the default flag. newName is optional: when empty, the
// clone is named after its source with a " (copy)" suffix.
func (c *Catalog) Duplicate(ctx context.Context, id, newName string) (*models.QualityProfile, error) {
	source, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = source.Name + " (copy)"
	}
	clone := &models.QualityProfile{
		ID:          uuid.New().String(),
		Name:        newName,
		Description: source.Description,
		Engine:      source.Engine,
		IsDefault:   false,
		IsBuiltin:   false,
		Parameters:  source.Parameters,
	}
	if err := c.repo.Create(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// SetDefault atomically flips the default profile for engine, the
// "exactly one default" invariant enforced inside the repository's
// transaction.
func (c *Catalog) SetDefault(ctx context.Context, engine, id string) error {
	profile, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if profile.Engine != engine {
		return resilience.New(resilience.KindValidation, "profile does not belong to the requested engine").
			WithField("id", id).WithField("engine", engine)
	}
	return c.repo.SetDefault(ctx, engine, id)
}

// Default returns the current default profile for engine.
func (c *Catalog) Default(ctx context.Context, engine string) (*models.QualityProfile, error) {
	profile, err := c.repo.FindDefault(ctx, engine)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, resilience.New(resilience.KindNotFound, "no default quality profile for engine").WithField("engine", engine)
		}
		return nil, err
	}
	return profile, nil
}
