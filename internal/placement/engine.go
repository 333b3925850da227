package placement

import "fmt"

// Verdict is the outcome of one gate-evaluation pass: the gate that fired and its target.
type Verdict struct {
	Gate   GateID `json:"gate"`
	Target Target `json:"target"`
}

// Evaluate runs the gates in order against tc and returns the first match.
// The default gate always matches, so every context yields a verdict.
func Evaluate(tc TaskContext) Verdict {
	for _, g := range gates {
		if g.matches(tc) {
			return Verdict{Gate: g.id, Target: g.target(tc)}
		}
	}
	// unreachable while the default gate is last
	panic("placement: no gate matched")
}

// Decide returns the tier tc should run on.
func Decide(tc TaskContext) Target {
	return Evaluate(tc).Target
}

// Explain returns a provenance string naming the gate that fired, the target it chose,
// and the values that triggered it.
func Explain(tc TaskContext) string {
	return Evaluate(tc).Explain(tc)
}

// Explain renders the verdict using the values in tc, which must be the context the
// verdict was evaluated from.
func (v Verdict) Explain(tc TaskContext) string {
	g, ok := gateByID(v.Gate)
	if !ok {
		return fmt.Sprintf("Routed to %s: unknown gate %q", v.Target, v.Gate)
	}
	return fmt.Sprintf("Routed to %s: %s (%s)", v.Target, g.label, g.describe(tc))
}

// Order is the 1-based position of the fired gate, or 0 for an unknown gate.
func (v Verdict) Order() int {
	for i, g := range gates {
		if g.id == v.Gate {
			return i + 1
		}
	}
	return 0
}

func gateByID(id GateID) (gate, bool) {
	for _, g := range gates {
		if g.id == id {
			return g, true
		}
	}
	return gate{}, false
}

func (v Verdict) String() string {
	return fmt.Sprintf("%s -> %s", v.Gate, v.Target)
}
