package gps

// StepKind classifies a ResolutionPlan step.
type StepKind int

const (
	StepNew StepKind = iota
	StepUpgrade
	StepRebuild
	StepRemove
)

func (k StepKind) String() string {
	switch k {
	case StepNew:
		return "new"
	case StepUpgrade:
		return "upgrade"
	case StepRebuild:
		return "rebuild"
	case StepRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// PlanStep is one entry of a ResolutionPlan: a chosen (PackageRecord,
// flag-vector) pair and its annotation.
type PlanStep struct {
	Record *PackageRecord
	Flags  map[string]bool
	Kind   StepKind
}

// ResolutionPlan is the ordered list of install/remove/rebuild steps
// produced by the resolver, already topologically sorted on the
// build+link subgraph.
type ResolutionPlan struct {
	Steps          []PlanStep
	DownloadSize   uint64
	InstalledSize  uint64
}

// Totals recomputes DownloadSize/InstalledSize from Steps; callers that
// mutate Steps directly (e.g. depclean trimming a remove step) should call
// this before presenting the plan.
func (p *ResolutionPlan) Totals() {
	var dl, inst uint64
	for _, s := range p.Steps {
		if s.Kind == StepRemove {
			continue
		}
		dl += s.Record.DownloadSize
		inst += s.Record.InstalledSize
	}
	p.DownloadSize, p.InstalledSize = dl, inst
}
