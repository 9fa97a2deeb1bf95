package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobMode selects whether synthesis draws on a named preset or a cloned voice.
type JobMode string

const (
	ModePreset     JobMode = "preset"
	ModeVoiceClone JobMode = "voice_clone"
)

// JobKind distinguishes audio-producing jobs from voice-cloning jobs.
type JobKind string

const (
	KindSynthesize JobKind = "synthesize"
	KindClone      JobKind = "clone"
)

// JobStatus is the job's lifecycle state. Transitions are linear and
// monotonic except for explicit deletion: queued -> processing ->
// {completed, failed}; queued -> failed is allowed at dequeue time.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// VoicePreset enumerates the pre-baked reference voices available when
// Mode == ModePreset.
type VoicePreset string

const (
	PresetFemaleGeneric VoicePreset = "female_generic"
	PresetMaleGeneric   VoicePreset = "male_generic"
	PresetFemaleYoung   VoicePreset = "female_young"
	PresetMaleDeep      VoicePreset = "male_deep"
	PresetFemaleWarm    VoicePreset = "female_warm"
	PresetMaleWarm      VoicePreset = "male_warm"
	PresetFemaleSoft    VoicePreset = "female_soft"
	PresetMaleSoft      VoicePreset = "male_soft"
)

// VoicePresets lists every accepted preset value, in the order presented
// to clients by validation errors.
var VoicePresets = []VoicePreset{
	PresetFemaleGeneric, PresetMaleGeneric, PresetFemaleYoung, PresetMaleDeep,
	PresetFemaleWarm, PresetMaleWarm, PresetFemaleSoft, PresetMaleSoft,
}

// Job is the durable record for a single unit of work: either rendering
// an audio artifact (Kind == KindSynthesize) or cloning a voice profile
// (Kind == KindClone).
type Job struct {
	ID     string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Mode   JobMode `json:"mode" gorm:"type:varchar(20);not null"`
	Kind   JobKind `json:"kind" gorm:"type:varchar(20);not null"`
	Status JobStatus `json:"status" gorm:"type:varchar(20);not null;default:'queued';index"`

	// Synthesize-only fields.
	Text           string  `json:"text,omitempty" gorm:"type:text"`
	SourceLanguage string  `json:"source_language,omitempty" gorm:"type:varchar(10)"`
	TargetLanguage string  `json:"target_language,omitempty" gorm:"type:varchar(10)"`
	VoicePreset    *VoicePreset `json:"voice_preset,omitempty" gorm:"type:varchar(20)"`
	VoiceProfileID *string `json:"voice_profile_id,omitempty" gorm:"type:varchar(36);index"`
	QualityProfileID *string `json:"quality_profile_id,omitempty" gorm:"type:varchar(36)"`
	ArtifactPath   *string `json:"artifact_path,omitempty" gorm:"type:text"`

	// Clone-only result field. Populated once a clone job completes;
	// its presence rather than ArtifactPath signals clone completion.
	VoiceID *string `json:"voice_id,omitempty" gorm:"type:varchar(36)"`

	// Clone-only inputs, persisted so the worker can drive the job
	// without needing to re-read the multipart form.
	CloneUploadPath   *string `json:"-" gorm:"type:text"`
	CloneName         *string `json:"-" gorm:"type:text"`
	CloneDescription  *string `json:"-" gorm:"type:text"`
	CloneRefText      *string `json:"-" gorm:"type:text"`

	Progress     float64 `json:"progress" gorm:"type:real;not null;default:0"`
	ErrorKind    *string `json:"error_kind,omitempty" gorm:"type:varchar(30)"`
	ErrorMessage *string `json:"error_message,omitempty" gorm:"type:text"`

	// Tombstone is set by DELETE on a processing job; the worker checks
	// it at every progress checkpoint and abandons the job cooperatively.
	Tombstone bool `json:"-" gorm:"not null;default:false"`

	RequestID string `json:"request_id" gorm:"type:varchar(36)"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate assigns a fresh id when the caller hasn't supplied one.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// TableName pins the table name so renaming the Go type never migrates data.
func (Job) TableName() string { return "jobs" }
