// Package api is the API Gateway: validates inbound requests, drives
// the Job Store and Queue Broker, and never touches the Synthesis
// Facade directly — that boundary belongs to the Worker.
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/voxforge/voxforge/internal/audionorm"
	"github.com/voxforge/voxforge/internal/config"
	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/qualityprofile"
	"github.com/voxforge/voxforge/internal/queue"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"
	"github.com/voxforge/voxforge/internal/transcode"
	"github.com/voxforge/voxforge/internal/validation"
	"github.com/voxforge/voxforge/internal/voiceprofile"
	"github.com/voxforge/voxforge/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler holds every collaborator an HTTP route needs. Constructed
// once by the registry at startup.
type Handler struct {
	cfg        *config.Config
	jobs       repository.JobRepository
	voices     *voiceprofile.Catalog
	profiles   *qualityprofile.Catalog
	broker     queue.Broker
	normalizer audionorm.Normalizer
	transcoder transcode.Transcoder

	// shuttingDown is flipped by the registry during graceful
	// shutdown so new job submissions get 503 instead of racing the
	// broker close.
	shuttingDown bool
}

// NewHandler builds the Handler.
func NewHandler(
	cfg *config.Config,
	jobs repository.JobRepository,
	voices *voiceprofile.Catalog,
	profiles *qualityprofile.Catalog,
	broker queue.Broker,
	normalizer audionorm.Normalizer,
	transcoder transcode.Transcoder,
) *Handler {
	return &Handler{cfg: cfg, jobs: jobs, voices: voices, profiles: profiles, broker: broker, normalizer: normalizer, transcoder: transcoder}
}

// SetShuttingDown flips the 503-on-new-jobs flag.
func (h *Handler) SetShuttingDown(v bool) { h.shuttingDown = v }

// HealthCheck reports readiness of the store and broker (spec: "incl.
// model/device, queue, store").
func (h *Handler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}

	if _, err := h.jobs.List(c.Request.Context(), 0, 1); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["store_error"] = err.Error()
	}
	if cb, ok := h.broker.(*queue.ChannelBroker); ok {
		body["queue_depth"] = cb.Depth()
		body["queue_in_flight"] = cb.InFlight()
	}
	c.JSON(status, body)
}

// CreateJob handles POST /jobs (form): validates and enqueues a
// synthesize job.
func (h *Handler) CreateJob(c *gin.Context) {
	if h.shuttingDown {
		respondError(c, resilience.New(resilience.KindUnavailable, "server is shutting down, not accepting new jobs"))
		return
	}

	text, err := validation.SanitizeText(c.PostForm("text"))
	if err != nil {
		respondError(c, err)
		return
	}

	sourceLang, err := validation.ValidateLanguageCode(defaultStr(c.PostForm("source_language"), "en"))
	if err != nil {
		respondError(c, err)
		return
	}
	targetLang, err := validation.ValidateLanguageCode(defaultStr(c.PostForm("target_language"), sourceLang))
	if err != nil {
		respondError(c, err)
		return
	}

	modeStr, err := validation.CoerceEnum("mode", defaultStr(c.PostForm("mode"), string(models.ModePreset)),
		[]string{string(models.ModePreset), string(models.ModeVoiceClone)})
	if err != nil {
		respondError(c, err)
		return
	}
	mode := models.JobMode(modeStr)

	job := &models.Job{
		Mode:           mode,
		Kind:           models.KindSynthesize,
		Status:         models.StatusQueued,
		Text:           text,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		RequestID:      requestIDOf(c),
	}

	if qualityID := c.PostForm("quality_profile_id"); qualityID != "" {
		if _, err := h.profiles.Get(c.Request.Context(), qualityID); err != nil {
			respondError(c, err)
			return
		}
		job.QualityProfileID = &qualityID
	}

	switch mode {
	case models.ModePreset:
		presetNames := make([]string, 0, len(models.VoicePresets))
		for _, p := range models.VoicePresets {
			presetNames = append(presetNames, string(p))
		}
		presetStr, err := validation.CoerceEnum("voice_preset", c.PostForm("voice_preset"), presetNames)
		if err != nil {
			respondError(c, err)
			return
		}
		preset := models.VoicePreset(presetStr)
		job.VoicePreset = &preset
	case models.ModeVoiceClone:
		voiceID := c.PostForm("voice_profile_id")
		if voiceID == "" {
			respondError(c, resilience.New(resilience.KindValidation, "voice_profile_id is required for mode=voice_clone").WithField("field", "voice_profile_id"))
			return
		}
		if _, err := h.voices.Get(c.Request.Context(), voiceID); err != nil {
			respondError(c, err)
			return
		}
		job.VoiceProfileID = &voiceID
	}

	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "persisting job", err))
		return
	}
	if err := h.broker.Enqueue(c.Request.Context(), job.ID); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "enqueuing job", err))
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	page, pageSize, err := validation.ParsePagination(c.Query("page"), c.Query("page_size"))
	if err != nil {
		respondError(c, err)
		return
	}

	var filter repository.JobFilter
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.JobStatus(statusStr)
		filter.Status = &status
	}

	jobs, total, err := h.jobs.ListFiltered(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "listing jobs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs": jobs,
		"pagination": gin.H{
			"page": page, "page_size": pageSize, "total": total,
		},
	})
}

// GetJob handles GET /jobs/{id}.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.findJob(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetJobFormats handles GET /jobs/{id}/formats.
func (h *Handler) GetJobFormats(c *gin.Context) {
	if _, err := h.findJob(c, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"formats": transcode.SupportedFormats})
}

// DownloadJob handles GET /jobs/{id}/download?format=F.
func (h *Handler) DownloadJob(c *gin.Context) {
	job, err := h.findJob(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if job.Status != models.StatusCompleted || job.ArtifactPath == nil {
		respondError(c, resilience.New(resilience.KindConflict, "job is not completed"))
		return
	}

	format := transcode.Format(defaultStr(c.Query("format"), string(transcode.FormatWAV)))
	if !transcode.IsSupported(format) {
		respondError(c, resilience.New(resilience.KindValidation, "unknown format").WithField("format", format))
		return
	}

	raw, err := os.ReadFile(*job.ArtifactPath)
	if err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "reading artifact", err))
		return
	}

	out, err := h.transcoder.Transcode(c.Request.Context(), transcode.PCM{Data: raw, SampleRate: 24000, Channels: 1}, format)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, job.ID, format))
	c.Data(http.StatusOK, mimeForFormat(format), out)
}

// DeleteJob handles DELETE /jobs/{id}: tombstones a processing job
// cooperatively, or deletes any other job (queued or terminal) and its
// artifact outright.
func (h *Handler) DeleteJob(c *gin.Context) {
	job, err := h.findJob(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if job.Status == models.StatusProcessing {
		if err := h.jobs.MarkTombstoned(c.Request.Context(), job.ID); err != nil {
			respondError(c, resilience.Wrap(resilience.KindInternal, "tombstoning job", err))
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	if job.ArtifactPath != nil {
		_ = os.Remove(*job.ArtifactPath)
	}
	if err := h.jobs.Delete(c.Request.Context(), job.ID); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "deleting job", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) findJob(c *gin.Context, id string) (*models.Job, error) {
	job, err := h.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		return nil, resilience.New(resilience.KindNotFound, "job not found").WithField("id", id)
	}
	return job, nil
}

// CloneVoice handles POST /voices/clone (multipart): validates the
// upload and enqueues a clone job; the worker does the actual
// normalization and voice profile creation.
func (h *Handler) CloneVoice(c *gin.Context) {
	if h.shuttingDown {
		respondError(c, resilience.New(resilience.KindUnavailable, "server is shutting down, not accepting new jobs"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, resilience.New(resilience.KindValidation, "file is required").WithField("field", "file"))
		return
	}
	if err := validation.ValidateUploadSize(fileHeader.Size); err != nil {
		respondError(c, err)
		return
	}
	if err := validation.ValidateUploadMIME(fileHeader.Header.Get("Content-Type")); err != nil {
		respondError(c, err)
		return
	}

	name, err := validation.ValidateVoiceProfileName(c.PostForm("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	language, err := validation.ValidateLanguageCode(defaultStr(c.PostForm("language"), "en"))
	if err != nil {
		respondError(c, err)
		return
	}

	raw, err := readMultipart(fileHeader)
	if err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "reading upload", err))
		return
	}

	duration, err := h.normalizer.ProbeDuration(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := validation.ValidateUploadDuration(duration); err != nil {
		respondError(c, err)
		return
	}

	uploadPath := filepath.Join(h.cfg.ArtifactDir, "uploads", uuid.New().String()+filepath.Ext(fileHeader.Filename))
	if err := os.MkdirAll(filepath.Dir(uploadPath), 0755); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "creating upload directory", err))
		return
	}
	if err := os.WriteFile(uploadPath, raw, 0644); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "persisting upload", err))
		return
	}

	description := c.PostForm("description")
	refText := c.PostForm("ref_text")

	job := &models.Job{
		Mode:            models.ModeVoiceClone,
		Kind:            models.KindClone,
		Status:          models.StatusQueued,
		SourceLanguage:  language,
		RequestID:       requestIDOf(c),
		CloneUploadPath: &uploadPath,
		CloneName:       &name,
	}
	if description != "" {
		job.CloneDescription = &description
	}
	if refText != "" {
		job.CloneRefText = &refText
	}

	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "persisting clone job", err))
		return
	}
	if err := h.broker.Enqueue(c.Request.Context(), job.ID); err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "enqueuing clone job", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// ListVoices handles GET /voices.
func (h *Handler) ListVoices(c *gin.Context) {
	profiles, err := h.voices.List(c.Request.Context(), c.Query("language"))
	if err != nil {
		respondError(c, resilience.Wrap(resilience.KindInternal, "listing voice profiles", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": profiles})
}

// GetVoice handles GET /voices/{id}.
func (h *Handler) GetVoice(c *gin.Context) {
	profile, err := h.voices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// DeleteVoice handles DELETE /voices/{id}.
func (h *Handler) DeleteVoice(c *gin.Context) {
	profile, err := h.voices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.voices.Delete(c.Request.Context(), profile.ID); err != nil {
		respondError(c, err)
		return
	}
	_ = os.Remove(profile.ReferenceAudioPath)
	c.Status(http.StatusNoContent)
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func requestIDOf(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

func mimeForFormat(f transcode.Format) string {
	switch f {
	case transcode.FormatMP3:
		return "audio/mpeg"
	case transcode.FormatOGG:
		return "audio/ogg"
	case transcode.FormatFLAC:
		return "audio/flac"
	case transcode.FormatM4A:
		return "audio/mp4"
	case transcode.FormatOpus:
		return "audio/opus"
	default:
		return "audio/wav"
	}
}

func readMultipart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
