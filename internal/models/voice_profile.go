package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoiceProfile is a persisted, canonicalized reference-audio recording
// used to parameterize zero-shot cloning at inference time. Created
// exclusively by clone jobs; the Synthesis Facade reads it but never
// writes it.
type VoiceProfile struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string  `json:"name" gorm:"type:varchar(100);not null"`
	Description *string `json:"description,omitempty" gorm:"type:text"`
	Language    string  `json:"language" gorm:"type:varchar(10);not null;index"`

	ReferenceAudioPath string `json:"reference_audio_path" gorm:"type:text;not null"`
	RefText            *string `json:"ref_text,omitempty" gorm:"type:text"`

	DurationSeconds float64 `json:"duration_seconds" gorm:"type:real;not null"`
	SampleRate      int     `json:"sample_rate" gorm:"type:int;not null"`

	UsageCount int64 `json:"usage_count" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate assigns a fresh id when the caller hasn't supplied one.
func (v *VoiceProfile) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

func (VoiceProfile) TableName() string { return "voice_profiles" }
