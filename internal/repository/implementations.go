package repository

import (
	"context"
	"time"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/resilience"

	"gorm.io/gorm"
)

// JobFilter narrows a job listing. A zero value matches every job.
type JobFilter struct {
	Status *models.JobStatus
}

// JobRepository is the Job Store: durable, keyed on job id, with
// secondary indices (via gorm's column indexes) on status and
// created_at to support paginated listing.
type JobRepository interface {
	Repository[models.Job]
	ListFiltered(ctx context.Context, filter JobFilter, page, size int) ([]models.Job, int64, error)
	ListByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, patch map[string]any) error
	MarkTombstoned(ctx context.Context, id string) error
	IsTombstoned(ctx context.Context, id string) (bool, error)
	CountReferencingVoiceProfile(ctx context.Context, voiceProfileID string, activeOnly bool) (int64, error)
}

type jobRepository struct {
	*BaseRepository[models.Job]
}

// NewJobRepository builds the Job Store on top of db.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{BaseRepository: NewBaseRepository[models.Job](db)}
}

func (r *jobRepository) ListFiltered(ctx context.Context, filter JobFilter, page, size int) ([]models.Job, int64, error) {
	var jobs []models.Job
	var count int64

	q := r.DB().WithContext(ctx).Model(&models.Job{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * size
	err := q.Order("created_at desc").Offset(offset).Limit(size).Find(&jobs).Error
	return jobs, count, err
}

func (r *jobRepository) ListByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	var jobs []models.Job
	err := r.DB().WithContext(ctx).Where("status = ?", status).Find(&jobs).Error
	return jobs, err
}

// UpdateStatus is the single-statement atomic update a concurrent reader
// either observes in full or not at all.
func (r *jobRepository) UpdateStatus(ctx context.Context, id string, status models.JobStatus, patch map[string]any) error {
	updates := map[string]any{"status": status}
	for k, v := range patch {
		updates[k] = v
	}
	return r.DB().WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Updates(updates).Error
}

func (r *jobRepository) MarkTombstoned(ctx context.Context, id string) error {
	return r.DB().WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Update("tombstone", true).Error
}

func (r *jobRepository) IsTombstoned(ctx context.Context, id string) (bool, error) {
	var job models.Job
	if err := r.DB().WithContext(ctx).Select("tombstone").Where("id = ?", id).First(&job).Error; err != nil {
		return false, err
	}
	return job.Tombstone, nil
}

func (r *jobRepository) CountReferencingVoiceProfile(ctx context.Context, voiceProfileID string, activeOnly bool) (int64, error) {
	var count int64
	q := r.DB().WithContext(ctx).Model(&models.Job{}).Where("voice_profile_id = ?", voiceProfileID)
	if activeOnly {
		q = q.Where("status IN ?", []models.JobStatus{models.StatusQueued, models.StatusProcessing})
	}
	err := q.Count(&count).Error
	return count, err
}

// ReconcileOrphans runs at startup: any job left in "processing" from a
// prior process instance, with no matching entry in liveJobIDs, is
// transitioned to failed/abandoned.
func ReconcileOrphans(ctx context.Context, repo JobRepository, liveJobIDs map[string]struct{}) (int, error) {
	processing, err := repo.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return 0, err
	}

	n := 0
	now := time.Now()
	for _, job := range processing {
		if _, live := liveJobIDs[job.ID]; live {
			continue
		}
		abandoned := string(resilience.KindAbandoned)
		msg := "no in-flight task found for this job after process restart"
		if err := repo.UpdateStatus(ctx, job.ID, models.StatusFailed, map[string]any{
			"error_kind":    abandoned,
			"error_message": msg,
			"completed_at":  now,
		}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// VoiceProfileRepository is the VoiceProfile catalog's durable store.
type VoiceProfileRepository interface {
	Repository[models.VoiceProfile]
	ListByLanguage(ctx context.Context, language string) ([]models.VoiceProfile, error)
	IncrementUsage(ctx context.Context, id string) error
}

type voiceProfileRepository struct {
	*BaseRepository[models.VoiceProfile]
}

// NewVoiceProfileRepository builds the VoiceProfile store on top of db.
func NewVoiceProfileRepository(db *gorm.DB) VoiceProfileRepository {
	return &voiceProfileRepository{BaseRepository: NewBaseRepository[models.VoiceProfile](db)}
}

func (r *voiceProfileRepository) ListByLanguage(ctx context.Context, language string) ([]models.VoiceProfile, error) {
	var profiles []models.VoiceProfile
	q := r.DB().WithContext(ctx)
	if language != "" {
		q = q.Where("language = ?", language)
	}
	err := q.Order("created_at desc").Find(&profiles).Error
	return profiles, err
}

func (r *voiceProfileRepository) IncrementUsage(ctx context.Context, id string) error {
	return r.DB().WithContext(ctx).Model(&models.VoiceProfile{}).
		Where("id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// QualityProfileRepository is the QualityProfile catalog's durable
// store. SetDefault enforces the "exactly one default per engine"
// invariant inside a single transaction.
type QualityProfileRepository interface {
	Repository[models.QualityProfile]
	ListByEngine(ctx context.Context, engine string) ([]models.QualityProfile, error)
	FindDefault(ctx context.Context, engine string) (*models.QualityProfile, error)
	SetDefault(ctx context.Context, engine, id string) error
}

type qualityProfileRepository struct {
	*BaseRepository[models.QualityProfile]
}

// NewQualityProfileRepository builds the QualityProfile store on top of db.
func NewQualityProfileRepository(db *gorm.DB) QualityProfileRepository {
	return &qualityProfileRepository{BaseRepository: NewBaseRepository[models.QualityProfile](db)}
}

func (r *qualityProfileRepository) ListByEngine(ctx context.Context, engine string) ([]models.QualityProfile, error) {
	var profiles []models.QualityProfile
	err := r.DB().WithContext(ctx).Where("engine = ?", engine).Order("name").Find(&profiles).Error
	return profiles, err
}

func (r *qualityProfileRepository) FindDefault(ctx context.Context, engine string) (*models.QualityProfile, error) {
	var profile models.QualityProfile
	err := r.DB().WithContext(ctx).Where("engine = ? AND is_default = ?", engine, true).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetDefault atomically clears the existing default for engine and marks
// id as the new one, within a single transaction so a concurrent reader
// never observes two defaults or zero defaults.
func (r *qualityProfileRepository) SetDefault(ctx context.Context, engine, id string) error {
	return r.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.QualityProfile{}).
			Where("engine = ? AND id <> ?", engine, id).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.QualityProfile{}).
			Where("id = ?", id).
			Update("is_default", true).Error
	})
}
