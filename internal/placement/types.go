package placement

import (
	"errors"
	"fmt"
)

// ErrUnknownEnum is returned when a categorical field carries a tag outside its closed set.
var ErrUnknownEnum = errors.New("unknown enum value")

// Target is the execution tier a task is placed on.
type Target string

const (
	TargetEdge        Target = "edge"
	TargetWorkstation Target = "workstation"
	TargetCloud       Target = "cloud"
)

// Targets lists every valid target in tier order.
var Targets = []Target{TargetEdge, TargetWorkstation, TargetCloud}

// PayloadType describes the data being processed.
// It is informational in the current gate set.
type PayloadType string

const (
	PayloadRawImage PayloadType = "raw_image"
	PayloadFeatures PayloadType = "features"
	PayloadMetrics  PayloadType = "metrics"
)

// Privacy is the PHI sensitivity ring of the task data, strictest first.
type Privacy string

const (
	PrivacyPHIRaw       Privacy = "phi_raw"
	PrivacyPHIMasked    Privacy = "phi_masked"
	PrivacyDeidentified Privacy = "deidentified"
)

// ModelTier is the size class of a model.
type ModelTier string

const (
	TierTiny   ModelTier = "tiny"
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

// IsValid reports whether t is a known target.
func (t Target) IsValid() bool {
	switch t {
	case TargetEdge, TargetWorkstation, TargetCloud:
		return true
	}
	return false
}

// IsLocal reports whether the target keeps data inside local custody.
func (t Target) IsLocal() bool {
	return t == TargetEdge || t == TargetWorkstation
}

func (t Target) String() string { return string(t) }

// UnmarshalText rejects unknown targets.
func (t *Target) UnmarshalText(b []byte) error {
	v, err := ParseTarget(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTarget converts a tag into a Target.
func ParseTarget(s string) (Target, error) {
	t := Target(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: target %q", ErrUnknownEnum, s)
	}
	return t, nil
}

func (p PayloadType) IsValid() bool {
	switch p {
	case PayloadRawImage, PayloadFeatures, PayloadMetrics:
		return true
	}
	return false
}

func (p PayloadType) String() string { return string(p) }

func (p *PayloadType) UnmarshalText(b []byte) error {
	v, err := ParsePayloadType(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParsePayloadType(s string) (PayloadType, error) {
	p := PayloadType(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: payload type %q", ErrUnknownEnum, s)
	}
	return p, nil
}

func (p Privacy) IsValid() bool {
	switch p {
	case PrivacyPHIRaw, PrivacyPHIMasked, PrivacyDeidentified:
		return true
	}
	return false
}

// Strictness ranks privacy rings; higher is stricter. Unknown values rank 0.
func (p Privacy) Strictness() int {
	switch p {
	case PrivacyPHIRaw:
		return 3
	case PrivacyPHIMasked:
		return 2
	case PrivacyDeidentified:
		return 1
	}
	return 0
}

func (p Privacy) String() string { return string(p) }

func (p *Privacy) UnmarshalText(b []byte) error {
	v, err := ParsePrivacy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParsePrivacy(s string) (Privacy, error) {
	p := Privacy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: privacy %q", ErrUnknownEnum, s)
	}
	return p, nil
}

func (m ModelTier) IsValid() bool {
	switch m {
	case TierTiny, TierSmall, TierMedium, TierLarge:
		return true
	}
	return false
}

func (m ModelTier) String() string { return string(m) }

func (m *ModelTier) UnmarshalText(b []byte) error {
	v, err := ParseModelTier(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func ParseModelTier(s string) (ModelTier, error) {
	m := ModelTier(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: model tier %q", ErrUnknownEnum, s)
	}
	return m, nil
}

// ModelSpec is the resource footprint of the computation being routed.
type ModelSpec struct {
	Name   string    `json:"name" yaml:"name" validate:"required"`
	VRAMGB float64   `json:"vramGB" yaml:"vramGB" validate:"finite,gt=0"`
	Tier   ModelTier `json:"tier" yaml:"tier" validate:"oneof=tiny small medium large"`
}

// VRAMs is the accelerator memory available on each local tier.
type VRAMs struct {
	EdgeGB        float64 `json:"edgeGB" yaml:"edgeGB" validate:"finite,gte=0"`
	WorkstationGB float64 `json:"workstationGB" yaml:"workstationGB" validate:"finite,gt=0"`
}

// CostBudget tracks spend against the daily budget of the current period.
type CostBudget struct {
	DailyBudgetUSD float64 `json:"dailyBudgetUsd" yaml:"dailyBudgetUsd" validate:"finite,gte=0"`
	SpentUSD       float64 `json:"spentUsd" yaml:"spentUsd" validate:"finite,gte=0"`
}

// TaskContext is everything the policy knows about one task at decision time.
// It is a plain value: callers own it and the engine only reads copies.
type TaskContext struct {
	SLAMs       float64     `json:"slaMs" yaml:"slaMs" validate:"finite,gt=0"`
	PayloadType PayloadType `json:"payloadType" yaml:"payloadType" validate:"oneof=raw_image features metrics"`
	UplinkMbps  float64     `json:"uplinkMbps" yaml:"uplinkMbps" validate:"finite,gte=0"`
	JitterMs    float64     `json:"jitterMs" yaml:"jitterMs" validate:"finite,gte=0"`
	VRAMs       VRAMs       `json:"vrams" yaml:"vrams"`
	Model       ModelSpec   `json:"model" yaml:"model"`
	Privacy     Privacy     `json:"privacy" yaml:"privacy" validate:"oneof=phi_raw phi_masked deidentified"`
	Cost        CostBudget  `json:"cost" yaml:"cost"`
}
