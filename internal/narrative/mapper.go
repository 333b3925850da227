package narrative

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/upb/tier-router/internal/placement"
)

// ToNarrative renders ev with the copy tpl defines for its step. A missing progress
// becomes 0, and the event's badge wins over the template's default.
func ToNarrative(ev WorkflowEvent, tpl *Template) (NarrativeEvent, error) {
	step, ok := tpl.Steps[ev.Step]
	if !ok {
		return NarrativeEvent{}, fmt.Errorf("%w: step %q not found in template for modality %q",
			ErrStepNotFound, ev.Step, tpl.Modality)
	}

	progress := 0
	if ev.Progress != nil {
		progress = *ev.Progress
	}
	badge := step.Privacy
	if ev.Privacy != "" {
		badge = ev.Privacy
	}

	return NarrativeEvent{
		Step:         ev.Step,
		PlainText:    step.Text,
		Why:          step.Why,
		DoNow:        step.DoNow,
		Icon:         step.Icon,
		Progress:     progress,
		PrivacyBadge: badge,
		ETAHint:      step.ETAHint,
		Alert:        step.Alert,
	}, nil
}

// ToNarrativeBatch maps events in order and stops at the first failure.
func ToNarrativeBatch(events []WorkflowEvent, tpl *Template) ([]NarrativeEvent, error) {
	out := make([]NarrativeEvent, 0, len(events))
	for i, ev := range events {
		n, err := ToNarrative(ev, tpl)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// HumanizeStep turns a snake_case step id into Title Case: "focus_left" -> "Focus Left".
func HumanizeStep(step string) string {
	if step == "" {
		return ""
	}
	words := strings.Split(step, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// BadgeLabel returns the short display label for a badge. Unknown badges are returned as is.
func BadgeLabel(badge string) string {
	switch PrivacyBadge(badge) {
	case BadgeProcessingLocal:
		return "Processing locally"
	case BadgeSendingSummary:
		return "Sending summary"
	case BadgeCloudProcessing:
		return "Cloud processing"
	}
	return badge
}

// BadgeDescription returns a one-line explanation of a badge, or "" when unknown.
func BadgeDescription(badge string) string {
	switch PrivacyBadge(badge) {
	case BadgeProcessingLocal:
		return "Your images are being processed on this device."
	case BadgeSendingSummary:
		return "We're sending a summary (not the full image) for advanced analysis."
	case BadgeCloudProcessing:
		return "Encrypted processing in our secure data center."
	}
	return ""
}

// BadgeForTarget maps a placement tier to the badge a patient sees while it runs.
func BadgeForTarget(t placement.Target) PrivacyBadge {
	if t.IsLocal() {
		return BadgeProcessingLocal
	}
	return BadgeCloudProcessing
}
