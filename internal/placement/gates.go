package placement

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Gate thresholds. These are policy constants, not tunables.
const (
	// InteractiveSLAMs is the upper bound (inclusive) of an interactive task's SLA.
	InteractiveSLAMs = 500
	// EdgeSLAMs is the upper bound (inclusive) of an SLA only the edge device can meet.
	EdgeSLAMs = 50
	// MinUplinkMbps is the lowest uplink (inclusive) considered safe for a cloud round trip.
	MinUplinkMbps = 20
	// MaxJitterMs is the highest jitter (inclusive) considered safe for a cloud round trip.
	MaxJitterMs = 30
)

// GateID names one rule of the routing policy.
type GateID string

const (
	GatePrivacy      GateID = "privacy"
	GateSLA          GateID = "sla"
	GateVRAM         GateID = "vram"
	GateConnectivity GateID = "connectivity"
	GateCost         GateID = "cost"
	GateDefault      GateID = "default"
)

// gate is one ordered predicate/outcome pair. describe renders the values that made it fire.
type gate struct {
	id       GateID
	label    string
	outcome  string
	matches  func(tc TaskContext) bool
	target   func(tc TaskContext) Target
	describe func(tc TaskContext) string
}

// gates is evaluated top to bottom; the first match wins. It is never mutated.
var gates = []gate{
	{
		id:      GatePrivacy,
		label:   "Privacy gate",
		outcome: "raw PHI with an interactive SLA stays on the workstation",
		matches: func(tc TaskContext) bool {
			return tc.Privacy == PrivacyPHIRaw && tc.SLAMs <= InteractiveSLAMs
		},
		target: fixed(TargetWorkstation),
		describe: func(tc TaskContext) string {
			return fmt.Sprintf("raw PHI with SLA %sms", num(tc.SLAMs))
		},
	},
	{
		id:      GateSLA,
		label:   "SLA gate",
		outcome: "tiny models with an SLA of 50ms or less run on the edge",
		matches: func(tc TaskContext) bool {
			return tc.SLAMs <= EdgeSLAMs && tc.Model.Tier == TierTiny
		},
		target: fixed(TargetEdge),
		describe: func(tc TaskContext) string {
			return fmt.Sprintf("ultra-low latency %sms, tiny model", num(tc.SLAMs))
		},
	},
	{
		id:      GateVRAM,
		label:   "VRAM gate",
		outcome: "models larger than workstation VRAM go to the cloud",
		matches: func(tc TaskContext) bool {
			return tc.Model.VRAMGB > tc.VRAMs.WorkstationGB
		},
		target: fixed(TargetCloud),
		describe: func(tc TaskContext) string {
			return fmt.Sprintf("model %sGB > workstation %sGB", num(tc.Model.VRAMGB), num(tc.VRAMs.WorkstationGB))
		},
	},
	{
		id:      GateConnectivity,
		label:   "Connectivity gate",
		outcome: "uplink under 20Mbps or jitter over 30ms stays on the workstation",
		matches: func(tc TaskContext) bool {
			return tc.UplinkMbps < MinUplinkMbps || tc.JitterMs > MaxJitterMs
		},
		target: fixed(TargetWorkstation),
		describe: func(tc TaskContext) string {
			return fmt.Sprintf("uplink %sMbps, jitter %sms", num(tc.UplinkMbps), num(tc.JitterMs))
		},
	},
	{
		id:      GateCost,
		label:   "Cost gate",
		outcome: "an exhausted daily budget stays on the workstation",
		matches: func(tc TaskContext) bool {
			return budgetExhausted(tc.Cost)
		},
		target: fixed(TargetWorkstation),
		describe: func(tc TaskContext) string {
			return fmt.Sprintf("spent $%s >= budget $%s", money(tc.Cost.SpentUSD), money(tc.Cost.DailyBudgetUSD))
		},
	},
	{
		id:      GateDefault,
		label:   "Default routing",
		outcome: "interactive tasks prefer the workstation, async tasks the cloud",
		matches: func(TaskContext) bool { return true },
		target: func(tc TaskContext) Target {
			if tc.SLAMs <= InteractiveSLAMs {
				return TargetWorkstation
			}
			return TargetCloud
		},
		describe: func(tc TaskContext) string {
			class := "async"
			if tc.SLAMs <= InteractiveSLAMs {
				class = "interactive"
			}
			return fmt.Sprintf("SLA %sms, %s", num(tc.SLAMs), class)
		},
	},
}

func fixed(t Target) func(TaskContext) Target {
	return func(TaskContext) Target { return t }
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// budgetExhausted reports whether spend has reached the budget. Exactly at budget counts.
func budgetExhausted(c CostBudget) bool {
	return c.SpentUSD >= c.DailyBudgetUSD
}

func money(v float64) string {
	if !isFinite(v) {
		return num(v)
	}
	return decimal.NewFromFloat(v).String()
}

// GateInfo describes one gate for listings.
type GateInfo struct {
	Order   int    `json:"order"`
	ID      GateID `json:"id"`
	Label   string `json:"label"`
	Outcome string `json:"outcome"`
}

// Gates returns the gate order as evaluated by Evaluate.
func Gates() []GateInfo {
	out := make([]GateInfo, len(gates))
	for i, g := range gates {
		out[i] = GateInfo{Order: i + 1, ID: g.id, Label: g.label, Outcome: g.outcome}
	}
	return out
}

// Label returns the human-readable name of the gate.
func (id GateID) Label() string {
	if g, ok := gateByID(id); ok {
		return g.label
	}
	return string(id)
}
