package voiceprofile

import (
	"context"
	"testing"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.VoiceProfile{}, &models.Job{}))
	return db
}

func TestCatalog_RegisterAndGet(t *testing.T) {
	db := newTestDB(t)
	catalog := New(repository.NewVoiceProfileRepository(db), repository.NewJobRepository(db))

	profile := &models.VoiceProfile{
		Name: "narrator", Language: "en",
		ReferenceAudioPath: "/data/voices/narrator.pcm24k",
		DurationSeconds:    12.5, SampleRate: 24000,
	}
	require.NoError(t, catalog.Register(context.Background(), profile))
	require.NotEmpty(t, profile.ID)

	got, err := catalog.Get(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Equal(t, "narrator", got.Name)
}

func TestCatalog_GetNotFound(t *testing.T) {
	db := newTestDB(t)
	catalog := New(repository.NewVoiceProfileRepository(db), repository.NewJobRepository(db))

	_, err := catalog.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	require.Equal(t, resilience.KindNotFound, resilience.KindOf(err))
}

func TestCatalog_RecordUsageIncrementsCounter(t *testing.T) {
	db := newTestDB(t)
	voiceRepo := repository.NewVoiceProfileRepository(db)
	catalog := New(voiceRepo, repository.NewJobRepository(db))

	profile := &models.VoiceProfile{Name: "narrator", Language: "en", ReferenceAudioPath: "/x", SampleRate: 24000}
	require.NoError(t, catalog.Register(context.Background(), profile))

	require.NoError(t, catalog.RecordUsage(context.Background(), profile.ID))
	require.NoError(t, catalog.RecordUsage(context.Background(), profile.ID))

	got, err := catalog.Get(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.UsageCount)
}

func TestCatalog_DeleteRejectedWhileReferenced(t *testing.T) {
	db := newTestDB(t)
	voiceRepo := repository.NewVoiceProfileRepository(db)
	jobRepo := repository.NewJobRepository(db)
	catalog := New(voiceRepo, jobRepo)

	profile := &models.VoiceProfile{Name: "narrator", Language: "en", ReferenceAudioPath: "/x", SampleRate: 24000}
	require.NoError(t, catalog.Register(context.Background(), profile))

	job := &models.Job{
		Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusQueued,
		Text: "hello", SourceLanguage: "en", TargetLanguage: "en",
		VoiceProfileID: &profile.ID,
	}
	require.NoError(t, jobRepo.Create(context.Background(), job))

	err := catalog.Delete(context.Background(), profile.ID)
	require.Error(t, err)
	require.Equal(t, resilience.KindConflict, resilience.KindOf(err))
}

func TestCatalog_DeleteSucceedsWhenUnreferenced(t *testing.T) {
	db := newTestDB(t)
	catalog := New(repository.NewVoiceProfileRepository(db), repository.NewJobRepository(db))

	profile := &models.VoiceProfile{Name: "narrator", Language: "en", ReferenceAudioPath: "/x", SampleRate: 24000}
	require.NoError(t, catalog.Register(context.Background(), profile))

	require.NoError(t, catalog.Delete(context.Background(), profile.ID))

	_, err := catalog.Get(context.Background(), profile.ID)
	require.Error(t, err)
}
