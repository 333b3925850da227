package placement

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genTaskContext draws well-formed contexts that straddle every gate threshold.
func genTaskContext() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(1, 5000),   // SLA
		gen.Float64Range(0, 200),    // uplink
		gen.Float64Range(0, 80),     // jitter
		gen.Float64Range(0, 24),     // edge VRAM
		gen.Float64Range(1, 96),     // workstation VRAM
		gen.Float64Range(0.1, 120),  // model VRAM
		gen.Float64Range(0, 200),    // budget
		gen.Float64Range(0, 250),    // spent
		gen.OneConstOf(TierTiny, TierSmall, TierMedium, TierLarge),
		gen.OneConstOf(PrivacyPHIRaw, PrivacyPHIMasked, PrivacyDeidentified),
		gen.OneConstOf(PayloadRawImage, PayloadFeatures, PayloadMetrics),
	).Map(func(v []interface{}) TaskContext {
		return TaskContext{
			SLAMs:       v[0].(float64),
			PayloadType: v[10].(PayloadType),
			UplinkMbps:  v[1].(float64),
			JitterMs:    v[2].(float64),
			VRAMs:       VRAMs{EdgeGB: v[3].(float64), WorkstationGB: v[4].(float64)},
			Model:       ModelSpec{Name: "generated", VRAMGB: v[5].(float64), Tier: v[8].(ModelTier)},
			Privacy:     v[9].(Privacy),
			Cost:        CostBudget{DailyBudgetUSD: v[6].(float64), SpentUSD: v[7].(float64)},
		}
	})
}

func TestRoutingProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	properties.Property("every valid context routes to a known tier", prop.ForAll(
		func(tc TaskContext) bool {
			return Decide(tc).IsValid()
		},
		genTaskContext(),
	))

	properties.Property("explain names the decided target", prop.ForAll(
		func(tc TaskContext) bool {
			return strings.HasPrefix(Explain(tc), "Routed to "+Decide(tc).String()+": ")
		},
		genTaskContext(),
	))

	properties.Property("decisions are deterministic", prop.ForAll(
		func(tc TaskContext) bool {
			return Evaluate(tc) == Evaluate(tc) && Explain(tc) == Explain(tc)
		},
		genTaskContext(),
	))

	properties.Property("raw PHI with an interactive SLA never leaves the workstation", prop.ForAll(
		func(tc TaskContext) bool {
			if tc.Privacy != PrivacyPHIRaw || tc.SLAMs > InteractiveSLAMs {
				return true
			}
			return Decide(tc) == TargetWorkstation
		},
		genTaskContext(),
	))

	properties.Property("edge is only chosen for tiny models under the edge SLA", prop.ForAll(
		func(tc TaskContext) bool {
			if Decide(tc) != TargetEdge {
				return true
			}
			return tc.Model.Tier == TierTiny && tc.SLAMs <= EdgeSLAMs
		},
		genTaskContext(),
	))

	properties.Property("evaluation agrees with the reference if-chain", prop.ForAll(
		func(tc TaskContext) bool {
			target, gate := referenceRoute(tc)
			v := Evaluate(tc)
			return v.Target == target && v.Gate == gate
		},
		gen.OneGenOf(genTaskContext(), genThresholdContext()),
	))

	properties.TestingRun(t)
}

// referenceRoute restates the routing policy as a plain if-chain with literal thresholds,
// independent of the gate table.
func referenceRoute(tc TaskContext) (Target, GateID) {
	if tc.Privacy == PrivacyPHIRaw && tc.SLAMs <= 500 {
		return TargetWorkstation, GatePrivacy
	}
	if tc.SLAMs <= 50 && tc.Model.Tier == TierTiny {
		return TargetEdge, GateSLA
	}
	if tc.Model.VRAMGB > tc.VRAMs.WorkstationGB {
		return TargetCloud, GateVRAM
	}
	if tc.UplinkMbps < 20 || tc.JitterMs > 30 {
		return TargetWorkstation, GateConnectivity
	}
	if tc.Cost.SpentUSD >= tc.Cost.DailyBudgetUSD {
		return TargetWorkstation, GateCost
	}
	if tc.SLAMs <= 500 {
		return TargetWorkstation, GateDefault
	}
	return TargetCloud, GateDefault
}

// genThresholdContext draws contexts whose values sit on or beside each threshold.
func genThresholdContext() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(30.0, 50.0, 51.0, 200.0, 500.0, 501.0, 3000.0),
		gen.OneConstOf(19.99, 20.0, 100.0),
		gen.OneConstOf(10.0, 30.0, 30.01),
		gen.OneConstOf(47.99, 48.0, 48.01),
		gen.OneConstOf(49.99, 50.0, 55.0),
		gen.OneConstOf(TierTiny, TierSmall, TierLarge),
		gen.OneConstOf(PrivacyPHIRaw, PrivacyPHIMasked, PrivacyDeidentified),
	).Map(func(v []interface{}) TaskContext {
		tc := DefaultContext()
		tc.SLAMs = v[0].(float64)
		tc.UplinkMbps = v[1].(float64)
		tc.JitterMs = v[2].(float64)
		tc.VRAMs.WorkstationGB = 48
		tc.Model.VRAMGB = v[3].(float64)
		tc.Cost = CostBudget{DailyBudgetUSD: 50, SpentUSD: v[4].(float64)}
		tc.Model.Tier = v[5].(ModelTier)
		tc.Privacy = v[6].(Privacy)
		return tc
	})
}
