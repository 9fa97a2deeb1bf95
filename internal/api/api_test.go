package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/voxforge/voxforge/internal/config"
	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/qualityprofile"
	"github.com/voxforge/voxforge/internal/queue"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/transcode"
	"github.com/voxforge/voxforge/internal/voiceprofile"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.VoiceProfile{}, &models.QualityProfile{}))

	jobRepo := repository.NewJobRepository(db)
	voiceRepo := repository.NewVoiceProfileRepository(db)
	qualityRepo := repository.NewQualityProfileRepository(db)

	qualityCatalog := qualityprofile.New(qualityRepo)
	require.NoError(t, qualityCatalog.SeedBuiltins(context.Background()))
	voiceCatalog := voiceprofile.New(voiceRepo, jobRepo)

	broker := queue.NewChannelBroker(8, time.Minute)
	t.Cleanup(broker.Close)

	cfg := &config.Config{ArtifactDir: t.TempDir()}

	return NewHandler(cfg, jobRepo, voiceCatalog, qualityCatalog, broker, nil, transcode.NewWAVTranscoder())
}

func TestCreateAndGetJob(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	form := url.Values{}
	form.Set("text", "hello there")
	form.Set("mode", "preset")
	form.Set("voice_preset", "female_generic")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var created models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, models.StatusQueued, created.Status)

	getReq := httptest.NewRequest(http.MethodGet, "/jobs/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestCreateJob_RejectsUnknownPreset(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	form := url.Values{}
	form.Set("text", "hello there")
	form.Set("mode", "preset")
	form.Set("voice_preset", "not_a_preset")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_RejectsEmptyText(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	form := url.Values{}
	form.Set("text", "")
	form.Set("mode", "preset")
	form.Set("voice_preset", "female_generic")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_VoiceCloneRequiresProfileID(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	form := url.Values{}
	form.Set("text", "hello there")
	form.Set("mode", "voice_clone")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "not_found", envelope.ErrorKind)
}

func TestListJobs_PaginationDefaults(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs       []models.Job `json:"jobs"`
		Pagination struct {
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Pagination.Page)
	require.Equal(t, 20, body.Pagination.PageSize)
}

func TestHealthCheck(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestQualityProfiles_ListIncludesBuiltins(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/quality-profiles", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		QualityProfiles []models.QualityProfile `json:"quality_profiles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.QualityProfiles, 3)
}

func TestQualityProfiles_CreateRejectsReservedPrefix(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	payload := strings.NewReader(`{"id":"xtts_custom","name":"custom"}`)
	req := httptest.NewRequest(http.MethodPost, "/quality-profiles", payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestQualityProfiles_CreateRejectsOutOfRangeParameters(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	payload := strings.NewReader(`{"name":"too-sharp","parameters":{"temperature":0.75,"top_p":0.85,"top_k":201,"repetition_penalty":2.0,"length_penalty":1.0,"speed":1.0}}`)
	req := httptest.NewRequest(http.MethodPost, "/quality-profiles", payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQualityProfiles_CreateAcceptsBoundaryParameters(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	payload := strings.NewReader(`{"name":"edge","parameters":{"temperature":0.1,"top_p":1.0,"top_k":1,"repetition_penalty":5.0,"length_penalty":0.5,"speed":2.0}}`)
	req := httptest.NewRequest(http.MethodPost, "/quality-profiles", payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestQualityProfiles_DuplicateWithoutBodySucceeds(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodPost, "/quality-profiles/xtts_balanced/duplicate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var clone models.QualityProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clone))
	require.NotEqual(t, "xtts_balanced", clone.ID)
	require.NotEmpty(t, clone.Name)
	require.False(t, clone.IsBuiltin)
}

func TestQualityProfiles_DeleteRejectsBuiltin(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodDelete, "/quality-profiles/xtts_balanced", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateJob_RejectsWhileShuttingDown(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)
	h.SetShuttingDown(true)

	form := url.Values{}
	form.Set("text", "hello there")
	form.Set("mode", "preset")
	form.Set("voice_preset", "female_generic")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "unavailable", envelope.ErrorKind)
}

func TestDownloadJob_SetsContentDispositionHeader(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	artifactPath := h.cfg.ArtifactDir + "/artifact.pcm"
	require.NoError(t, os.WriteFile(artifactPath, make([]byte, 4800), 0644))

	job := &models.Job{
		Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusCompleted,
		Text: "hi", SourceLanguage: "en", TargetLanguage: "en", ArtifactPath: &artifactPath,
	}
	require.NoError(t, h.jobs.Create(context.Background(), job))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/download?format=wav", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `attachment; filename="`+job.ID+`.wav"`, rec.Header().Get("Content-Disposition"))
}

func TestVoices_GetNotFound(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/voices/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoices_ListEmpty(t *testing.T) {
	h := setupHandler(t)
	router := SetupRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Voices []models.VoiceProfile `json:"voices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Voices)
}
