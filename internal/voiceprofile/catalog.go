// Package voiceprofile is the VoiceProfile catalog: lookup, listing,
// and referential-integrity-guarded deletion. The canonical reference
// audio itself is produced by a clone Job and written by the worker;
// this package never writes the file, only the record.
package voiceprofile

import (
	"context"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"

	"gorm.io/gorm"
)

// Catalog mediates every read/delete against VoiceProfile records.
// Creation is driven by the worker once a clone job completes, not by
// this package, since the canonical audio must exist on disk first.
type Catalog struct {
	repo    repository.VoiceProfileRepository
	jobRepo repository.JobRepository
}

// New builds a Catalog over the given repositories.
func New(repo repository.VoiceProfileRepository, jobRepo repository.JobRepository) *Catalog {
	return &Catalog{repo: repo, jobRepo: jobRepo}
}

// Get fetches a voice profile by id.
func (c *Catalog) Get(ctx context.Context, id string) (*models.VoiceProfile, error) {
	profile, err := c.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, resilience.New(resilience.KindNotFound, "voice profile not found").WithField("id", id)
		}
		return nil, err
	}
	return profile, nil
}

// List returns every voice profile, optionally filtered by language.
func (c *Catalog) List(ctx context.Context, language string) ([]models.VoiceProfile, error) {
	return c.repo.ListByLanguage(ctx, language)
}

// Delete removes a voice profile record and, via the caller, its
// on-disk reference audio. Rejected while any job, in any status,
// references the id.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}
	count, err := c.jobRepo.CountReferencingVoiceProfile(ctx, id, false)
	if err != nil {
		return err
	}
	if count > 0 {
		return resilience.New(resilience.KindConflict, "voice profile is referenced by one or more jobs").
			WithField("id", id).WithField("referencing_jobs", count)
	}
	return c.repo.Delete(ctx, id)
}

// RecordUsage increments the usage counter each time a synthesize job
// draws on this voice profile.
func (c *Catalog) RecordUsage(ctx context.Context, id string) error {
	return c.repo.IncrementUsage(ctx, id)
}

// Register persists the VoiceProfile record produced by a completed
// clone job.
func (c *Catalog) Register(ctx context.Context, profile *models.VoiceProfile) error {
	return c.repo.Create(ctx, profile)
}
