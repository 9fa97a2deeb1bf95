package models

import (
	"fmt"
	"time"
)

// Reserved ids for the built-in quality profiles. Custom profile ids
// must never collide with this prefix.
const (
	ReservedIDPrefix   = "xtts_"
	BuiltinFastID      = "xtts_fast"
	BuiltinBalancedID  = "xtts_balanced"
	BuiltinHighQualityID = "xtts_high_quality"

	EngineXTTS = "xtts"
)

// QualityParameters is the tagged bundle of synthesis knobs merged
// verbatim at job time; the spec allows no per-job override of
// individual knobs.
type QualityParameters struct {
	Temperature          float64 `json:"temperature" gorm:"type:real;not null;default:0.75"`
	TopP                 float64 `json:"top_p" gorm:"type:real;not null;default:0.85"`
	TopK                 int     `json:"top_k" gorm:"type:int;not null;default:50"`
	RepetitionPenalty    float64 `json:"repetition_penalty" gorm:"type:real;not null;default:2.0"`
	LengthPenalty        float64 `json:"length_penalty" gorm:"type:real;not null;default:1.0"`
	Speed                float64 `json:"speed" gorm:"type:real;not null;default:1.0"`
	EnableTextSplitting  bool    `json:"enable_text_splitting" gorm:"not null;default:true"`
	Denoise              bool    `json:"denoise" gorm:"not null;default:false"`
}

// Validate checks every knob against its accepted range. Bounds are
// inclusive on both ends.
func (p QualityParameters) Validate() error {
	switch {
	case p.Temperature < 0.1 || p.Temperature > 1.5:
		return fmt.Errorf("temperature must be between 0.1 and 1.5, got %v", p.Temperature)
	case p.TopP < 0.0 || p.TopP > 1.0:
		return fmt.Errorf("top_p must be between 0.0 and 1.0, got %v", p.TopP)
	case p.TopK < 1 || p.TopK > 200:
		return fmt.Errorf("top_k must be between 1 and 200, got %v", p.TopK)
	case p.RepetitionPenalty < 1.0 || p.RepetitionPenalty > 5.0:
		return fmt.Errorf("repetition_penalty must be between 1.0 and 5.0, got %v", p.RepetitionPenalty)
	case p.LengthPenalty < 0.5 || p.LengthPenalty > 2.0:
		return fmt.Errorf("length_penalty must be between 0.5 and 2.0, got %v", p.LengthPenalty)
	case p.Speed < 0.5 || p.Speed > 2.0:
		return fmt.Errorf("speed must be between 0.5 and 2.0, got %v", p.Speed)
	}
	return nil
}

// QualityProfile is a named, bounded bundle of synthesis parameters.
// Exactly one profile per Engine carries IsDefault == true at any time.
type QualityProfile struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name        string `json:"name" gorm:"type:varchar(100);not null"`
	Description string `json:"description" gorm:"type:text"`
	Engine      string `json:"engine" gorm:"type:varchar(30);not null;index:idx_engine_default"`
	IsDefault   bool   `json:"is_default" gorm:"not null;default:false;index:idx_engine_default"`
	IsBuiltin   bool   `json:"is_builtin" gorm:"not null;default:false"`

	Parameters QualityParameters `json:"parameters" gorm:"embedded"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (QualityProfile) TableName() string { return "quality_profiles" }
