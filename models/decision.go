package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/upb/tier-router/internal/placement"
)

// DecisionRecord is one routed task as kept in the decision log.
type DecisionRecord struct {
	ID          uuid.UUID             `json:"id" db:"id"`
	RequestID   string                `json:"requestId,omitempty" db:"request_id"`
	Subject     string                `json:"subject,omitempty" db:"subject"`
	Target      placement.Target      `json:"target" db:"target"`
	Gate        placement.GateID      `json:"gate" db:"gate"`
	Explanation string                `json:"explanation" db:"explanation"`
	Context     placement.TaskContext `json:"context" db:"context"` // JSONB
	DecidedAt   time.Time             `json:"decidedAt" db:"decided_at"`
}

// TableName returns the table name for the DecisionRecord model
func (DecisionRecord) TableName() string {
	return "placement_decisions"
}

// NewDecisionRecord captures a verdict together with the context it was evaluated from.
func NewDecisionRecord(tc placement.TaskContext, v placement.Verdict) *DecisionRecord {
	return &DecisionRecord{
		ID:          uuid.New(),
		Target:      v.Target,
		Gate:        v.Gate,
		Explanation: v.Explain(tc),
		Context:     tc,
		DecidedAt:   time.Now().UTC(),
	}
}

// WithRequest sets request metadata
func (d *DecisionRecord) WithRequest(requestID, subject string) *DecisionRecord {
	d.RequestID = requestID
	d.Subject = subject
	return d
}

// ContextJSON encodes the task context for a JSONB column.
func (d *DecisionRecord) ContextJSON() ([]byte, error) {
	b, err := json.Marshal(d.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task context: %w", err)
	}
	return b, nil
}

// ScanContext decodes a JSONB column into the record's task context.
func (d *DecisionRecord) ScanContext(raw []byte) error {
	if len(raw) == 0 {
		d.Context = placement.TaskContext{}
		return nil
	}
	if err := json.Unmarshal(raw, &d.Context); err != nil {
		return fmt.Errorf("failed to decode task context: %w", err)
	}
	return nil
}
