package telemetry

import (
	"context"
	"time"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

// Instrumented wraps the patient-flow collaborators and records a call
// count and latency for every operation.
type Instrumented struct {
	tp      *TelemetryProvider
	triage  patientflow.TriageAssessor
	planner patientflow.ResourcePlanner
	advisor patientflow.Advisor
}

// Instrument wraps the three collaborators.
func (tp *TelemetryProvider) Instrument(t patientflow.TriageAssessor, p patientflow.ResourcePlanner, a patientflow.Advisor) *Instrumented {
	return &Instrumented{tp: tp, triage: t, planner: p, advisor: a}
}

func (i *Instrumented) Assess(ctx context.Context, req patientflow.TriageRequest) (*patientflow.TriageResult, error) {
	start := time.Now()
	res, err := i.triage.Assess(ctx, req)
	i.tp.observeCall("triage", start, err)
	return res, err
}

func (i *Instrumented) Plan(ctx context.Context, req patientflow.PlanRequest) (*patientflow.ResourcePlan, error) {
	start := time.Now()
	plan, err := i.planner.Plan(ctx, req)
	i.tp.observeCall("resource_plan", start, err)
	return plan, err
}

func (i *Instrumented) FirstAid(ctx context.Context, symptoms string) (string, error) {
	start := time.Now()
	text, err := i.advisor.FirstAid(ctx, symptoms)
	i.tp.observeCall("first_aid", start, err)
	return text, err
}

func (i *Instrumented) Chat(ctx context.Context, req patientflow.ChatRequest) (string, error) {
	start := time.Now()
	text, err := i.advisor.Chat(ctx, req)
	i.tp.observeCall("chat", start, err)
	return text, err
}
