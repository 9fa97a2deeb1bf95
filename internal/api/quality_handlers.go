package api

import (
	"net/http"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/resilience"

	"github.com/gin-gonic/gin"
)

type createQualityProfileRequest struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name" binding:"required"`
	Description string                   `json:"description"`
	Engine      string                   `json:"engine"`
	Parameters  models.QualityParameters `json:"parameters"`
}

// CreateQualityProfile handles POST /quality-profiles.
func (h *Handler) CreateQualityProfile(c *gin.Context) {
	var req createQualityProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, resilience.Wrap(resilience.KindValidation, "invalid request body", err))
		return
	}
	engine := req.Engine
	if engine == "" {
		engine = models.EngineXTTS
	}

	profile := &models.QualityProfile{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Engine:      engine,
		Parameters:  req.Parameters,
	}
	if err := h.profiles.Create(c.Request.Context(), profile); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

// ListQualityProfiles handles GET /quality-profiles.
func (h *Handler) ListQualityProfiles(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context(), c.Query("engine"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quality_profiles": profiles})
}

// GetQualityProfile handles GET /quality-profiles/{id}.
func (h *Handler) GetQualityProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type patchQualityProfileRequest struct {
	Name        *string                   `json:"name"`
	Description *string                   `json:"description"`
	Parameters  *models.QualityParameters `json:"parameters"`
}

// UpdateQualityProfile handles PATCH /quality-profiles/{id}.
func (h *Handler) UpdateQualityProfile(c *gin.Context) {
	var req patchQualityProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, resilience.Wrap(resilience.KindValidation, "invalid request body", err))
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), c.Param("id"), func(p *models.QualityProfile) {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Parameters != nil {
			p.Parameters = *req.Parameters
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// DeleteQualityProfile handles DELETE /quality-profiles/{id}.
func (h *Handler) DeleteQualityProfile(c *gin.Context) {
	if err := h.profiles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type duplicateQualityProfileRequest struct {
	Name string `json:"name"`
}

// DuplicateQualityProfile handles POST /quality-profiles/{id}/duplicate.
// The request body, and the name field within it, are both optional:
// Catalog.Duplicate derives a name from the source profile when none
// is given.
func (h *Handler) DuplicateQualityProfile(c *gin.Context) {
	var req duplicateQualityProfileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, resilience.Wrap(resilience.KindValidation, "invalid request body", err))
			return
		}
	}
	clone, err := h.profiles.Duplicate(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, clone)
}

// SetDefaultQualityProfile handles POST /quality-profiles/{id}/set-default.
func (h *Handler) SetDefaultQualityProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.profiles.SetDefault(c.Request.Context(), profile.Engine, profile.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
