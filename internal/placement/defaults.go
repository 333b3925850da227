package placement

// DefaultContext returns a typical workstation with good connectivity running a small
// model on raw PHI, well under budget. Tests and callers derive scenarios from it by
// overriding fields on the returned copy.
func DefaultContext() TaskContext {
	return TaskContext{
		SLAMs:       200,
		PayloadType: PayloadRawImage,
		UplinkMbps:  100,
		JitterMs:    10,
		VRAMs: VRAMs{
			EdgeGB:        8,
			WorkstationGB: 48,
		},
		Model: ModelSpec{
			Name:   "retina/seg",
			VRAMGB: 4,
			Tier:   TierSmall,
		},
		Privacy: PrivacyPHIRaw,
		Cost: CostBudget{
			DailyBudgetUSD: 100,
			SpentUSD:       0,
		},
	}
}

// Option overrides one aspect of a TaskContext.
type Option func(*TaskContext)

// NewTaskContext starts from DefaultContext, applies opts in order and validates the result.
func NewTaskContext(opts ...Option) (TaskContext, error) {
	tc := DefaultContext()
	for _, opt := range opts {
		opt(&tc)
	}
	return Validate(tc)
}

func WithSLA(ms float64) Option {
	return func(tc *TaskContext) { tc.SLAMs = ms }
}

func WithPayload(p PayloadType) Option {
	return func(tc *TaskContext) { tc.PayloadType = p }
}

func WithNetwork(uplinkMbps, jitterMs float64) Option {
	return func(tc *TaskContext) {
		tc.UplinkMbps = uplinkMbps
		tc.JitterMs = jitterMs
	}
}

func WithVRAMs(edgeGB, workstationGB float64) Option {
	return func(tc *TaskContext) {
		tc.VRAMs = VRAMs{EdgeGB: edgeGB, WorkstationGB: workstationGB}
	}
}

func WithModel(m ModelSpec) Option {
	return func(tc *TaskContext) { tc.Model = m }
}

func WithPrivacy(p Privacy) Option {
	return func(tc *TaskContext) { tc.Privacy = p }
}

func WithCost(dailyBudgetUSD, spentUSD float64) Option {
	return func(tc *TaskContext) {
		tc.Cost = CostBudget{DailyBudgetUSD: dailyBudgetUSD, SpentUSD: spentUSD}
	}
}
