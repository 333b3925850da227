package narrative

import (
	"errors"
	"fmt"
)

var (
	// ErrStepNotFound is returned when an event names a step its template does not define.
	ErrStepNotFound = errors.New("step not found")
	// ErrTemplateNotFound is returned when no template file exists for a modality.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidTemplate is returned when a template file fails to parse or is incomplete.
	ErrInvalidTemplate = errors.New("invalid template")
	// ErrUnknownBadge is returned when decoding a privacy badge outside the closed set.
	ErrUnknownBadge = errors.New("unknown privacy badge")
)

// PrivacyBadge tells the patient where their data is being processed.
type PrivacyBadge string

const (
	BadgeProcessingLocal PrivacyBadge = "processing_local"
	BadgeSendingSummary  PrivacyBadge = "sending_summary"
	BadgeCloudProcessing PrivacyBadge = "cloud_processing"
)

func (b PrivacyBadge) IsValid() bool {
	switch b {
	case BadgeProcessingLocal, BadgeSendingSummary, BadgeCloudProcessing:
		return true
	}
	return false
}

func (b PrivacyBadge) String() string { return string(b) }

// UnmarshalText rejects badges outside the closed set, for both JSON and YAML input.
func (b *PrivacyBadge) UnmarshalText(text []byte) error {
	v := PrivacyBadge(text)
	if !v.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownBadge, string(text))
	}
	*b = v
	return nil
}

// WorkflowEvent is a progress signal emitted by a running workflow.
type WorkflowEvent struct {
	Step     string       `json:"step" validate:"required"`
	Progress *int         `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	Privacy  PrivacyBadge `json:"privacy,omitempty" validate:"omitempty,oneof=processing_local sending_summary cloud_processing"`
}

// NarrativeEvent is the patient-facing rendering of a WorkflowEvent.
type NarrativeEvent struct {
	Step         string       `json:"step"`
	PlainText    string       `json:"plainText"`
	Why          string       `json:"why"`
	DoNow        string       `json:"doNow"`
	Icon         string       `json:"icon"`
	Progress     int          `json:"progress"`
	PrivacyBadge PrivacyBadge `json:"privacyBadge"`
	ETAHint      string       `json:"etaHint,omitempty"`
	Alert        string       `json:"alert,omitempty"`
}

// TemplateStep is the copy shown for one workflow step.
type TemplateStep struct {
	Text    string       `yaml:"text" json:"text" validate:"required"`
	Why     string       `yaml:"why" json:"why"`
	DoNow   string       `yaml:"doNow" json:"doNow"`
	Icon    string       `yaml:"icon" json:"icon"`
	Privacy PrivacyBadge `yaml:"privacy" json:"privacy" validate:"required,oneof=processing_local sending_summary cloud_processing"`
	ETAHint string       `yaml:"etaHint,omitempty" json:"etaHint,omitempty"`
	Alert   string       `yaml:"alert,omitempty" json:"alert,omitempty"`
}

// Template holds the narrative copy for one modality in one language.
// Templates handed out by a Loader are shared and must not be modified.
type Template struct {
	Modality string                  `yaml:"modality" json:"modality" validate:"required"`
	Version  string                  `yaml:"version" json:"version" validate:"required"`
	Steps    map[string]TemplateStep `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
}
