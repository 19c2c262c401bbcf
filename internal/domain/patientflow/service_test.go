package patientflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/transit"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/pkg/clock"
)

// -- Mock collaborators --

type mockAssessor struct {
	mu     sync.Mutex
	result *TriageResult
	err    error
	last   TriageRequest
}

func (m *mockAssessor) Assess(_ context.Context, req TriageRequest) (*TriageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	r := *m.result
	return &r, nil
}

type mockPlanner struct {
	mu    sync.Mutex
	plan  *ResourcePlan
	err   error
	calls int
	last  PlanRequest
}

func (m *mockPlanner) Plan(_ context.Context, req PlanRequest) (*ResourcePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return m.plan.clone(), nil
}

func (m *mockPlanner) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

type mockAdvisor struct {
	advice string
	reply  string
	err    error
	chat   ChatRequest
}

func (m *mockAdvisor) FirstAid(_ context.Context, symptoms string) (string, error) {
	return m.advice, m.err
}

func (m *mockAdvisor) Chat(_ context.Context, req ChatRequest) (string, error) {
	m.chat = req
	return m.reply, m.err
}

type testDeps struct {
	svc      *Service
	engine   *Engine
	clock    *clock.Managed
	assessor *mockAssessor
	planner  *mockPlanner
	advisor  *mockAdvisor
}

func newTestService() *testDeps {
	return newTestServiceWith(ServiceConfig{})
}

func newTestServiceWith(cfg ServiceConfig) *testDeps {
	clk := clock.NewManaged(t0)
	engine := NewEngine(NewStore(clk), clk, DefaultConfig(), zerolog.Nop())
	d := &testDeps{
		engine:   engine,
		clock:    clk,
		assessor: &mockAssessor{result: &TriageResult{Severity: 4, TriageNotes: "Musculoskeletal injury. Impaired gait (limp)."}},
		planner:  &mockPlanner{plan: testPlan()},
		advisor:  &mockAdvisor{advice: "Keep the limb still.", reply: "We're two minutes away."},
	}
	d.svc = NewService(engine, DemoDirectory(), d.assessor, d.planner, d.advisor, cfg, zerolog.Nop())
	return d
}

func (d *testDeps) dispatch(t *testing.T, severity int) Patient {
	t.Helper()
	out, err := d.svc.ConfirmDispatch(context.Background(), DispatchRequest{
		NHSNumber:   "9912003072",
		Symptoms:    "face drooping",
		Severity:    severity,
		TriageNotes: "Suspected stroke symptoms.",
	})
	if err != nil {
		t.Fatalf("ConfirmDispatch: %v", err)
	}
	return out.Patient
}

// -- Remote triage --

func TestService_SubmitTriage_RegistersNonCritical(t *testing.T) {
	d := newTestService()
	out, err := d.svc.SubmitTriage(context.Background(), TriageSubmission{
		NHSNumber:     "9912003071",
		Symptoms:      "sore ankle",
		VideoFilename: "ankle_limp.mp4",
	})
	if err != nil {
		t.Fatalf("SubmitTriage: %v", err)
	}
	if out.Patient == nil {
		t.Fatal("expected a registered patient")
	}
	p := out.Patient
	if p.Status != StatusWaitingRemote || p.PatientName != "Jane Doe" || p.Severity != 4 {
		t.Errorf("unexpected patient %+v", p)
	}
	if p.WaitMinutes != EstimateWait(4, 0) {
		t.Errorf("expected wait %d, got %d", EstimateWait(4, 0), p.WaitMinutes)
	}
	if d.assessor.last.VideoFilename != "ankle_limp.mp4" {
		t.Errorf("video not forwarded: %+v", d.assessor.last)
	}
}

func TestService_SubmitTriage_NeedsMoreInfo(t *testing.T) {
	d := newTestService()
	d.assessor.result = &TriageResult{NeedsMoreInfo: true, Question: "Is the wound bleeding?"}

	history := []ChatTurn{{Role: "user", Content: "I cut my arm"}}
	out, err := d.svc.SubmitTriage(context.Background(), TriageSubmission{
		NHSNumber:    "9912003071",
		Symptoms:     "cut arm",
		Conversation: history,
	})
	if err != nil {
		t.Fatalf("SubmitTriage: %v", err)
	}
	if !out.NeedsMoreInfo || out.Question != "Is the wound bleeding?" || out.Patient != nil {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(out.Conversation) != 2 || out.Conversation[1].Role != "assistant" {
		t.Errorf("expected question appended to conversation, got %+v", out.Conversation)
	}
	if len(d.engine.Patients()) != 0 {
		t.Error("no patient may be created while more info is needed")
	}
}

func TestService_SubmitTriage_CriticalRequiresDispatch(t *testing.T) {
	d := newTestService()
	d.assessor.result = &TriageResult{Severity: 10, TriageNotes: "Suspected stroke symptoms."}

	out, err := d.svc.SubmitTriage(context.Background(), TriageSubmission{NHSNumber: "9912003072", Symptoms: "face drooping"})
	if err != nil {
		t.Fatalf("SubmitTriage: %v", err)
	}
	if !out.RequiresDispatch || out.Patient != nil {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(d.engine.Patients()) != 0 {
		t.Error("critical triage must wait for dispatch confirmation")
	}
}

func TestService_SubmitTriage_Errors(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	if _, err := d.svc.SubmitTriage(ctx, TriageSubmission{NHSNumber: "0000000000", Symptoms: "x"}); !errors.Is(err, ErrUnknownNHSNumber) {
		t.Errorf("expected ErrUnknownNHSNumber, got %v", err)
	}
	if _, err := d.svc.SubmitTriage(ctx, TriageSubmission{NHSNumber: "9912003071"}); err == nil {
		t.Error("expected error for empty symptoms")
	}

	d.assessor.result = &TriageResult{Severity: 0}
	if _, err := d.svc.SubmitTriage(ctx, TriageSubmission{NHSNumber: "9912003071", Symptoms: "x"}); !errors.Is(err, ErrInvalidSeverity) {
		t.Errorf("expected ErrInvalidSeverity, got %v", err)
	}

	d.assessor.err = errors.New("timeout")
	if _, err := d.svc.SubmitTriage(ctx, TriageSubmission{NHSNumber: "9912003071", Symptoms: "x"}); !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
	if len(d.engine.Patients()) != 0 {
		t.Error("failed triage must not register anyone")
	}
}

// -- Dispatch --

func TestService_ConfirmDispatch(t *testing.T) {
	d := newTestService()
	out, err := d.svc.ConfirmDispatch(context.Background(), DispatchRequest{
		NHSNumber: "9912003072",
		Symptoms:  "face drooping",
		Severity:  10,
	})
	if err != nil {
		t.Fatalf("ConfirmDispatch: %v", err)
	}
	p := out.Patient
	if p.Status != StatusAmbulanceDispatched || p.ETAMinutes != 0.5 {
		t.Errorf("unexpected patient %+v", p)
	}
	if p.DispatchTime == nil || !p.DispatchTime.Equal(t0) {
		t.Errorf("expected dispatch_time %v, got %v", t0, p.DispatchTime)
	}
	if out.FirstAid != "Keep the limb still." {
		t.Errorf("unexpected first aid %q", out.FirstAid)
	}
	if d.planner.calls != 0 {
		t.Error("planner must not run unless plan-on-dispatch is enabled")
	}
}

func TestService_ConfirmDispatch_AdvisorFailureDoesNotBlock(t *testing.T) {
	d := newTestService()
	d.advisor.err = errors.New("rate limited")

	out, err := d.svc.ConfirmDispatch(context.Background(), DispatchRequest{NHSNumber: "9912003072", Severity: 9})
	if err != nil {
		t.Fatalf("ConfirmDispatch: %v", err)
	}
	if out.FirstAid != fallbackFirstAid {
		t.Errorf("expected fallback advice, got %q", out.FirstAid)
	}
}

func TestService_ConfirmDispatch_RejectsNonCritical(t *testing.T) {
	d := newTestService()
	_, err := d.svc.ConfirmDispatch(context.Background(), DispatchRequest{NHSNumber: "9912003072", Severity: 5})
	if !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible, got %v", err)
	}
}

// -- Responder and planning --

func TestService_ResponderUpdate_NonCritical(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	now := t0
	in := newTestPatient(3, StatusAmbulanceDispatched)
	in.DispatchTime = &now
	p, err := d.engine.Register(ctx, in)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := d.svc.SubmitResponderUpdate(ctx, p.QueueID, ResponderUpdate{Symptoms: "sprain", ActionsTaken: "splint", Notes: "stable"})
	if err != nil {
		t.Fatalf("SubmitResponderUpdate: %v", err)
	}
	if got.Status != StatusMovingToTheatre {
		t.Errorf("expected %s, got %s", StatusMovingToTheatre, got.Status)
	}
	want := "Symptoms: sprain. Actions taken: splint. Additional notes: stable"
	if got.AmbulanceUpdates[0].Text != want {
		t.Errorf("expected %q, got %q", want, got.AmbulanceUpdates[0].Text)
	}
	if d.planner.calls != 0 {
		t.Error("planner called for a non-critical patient")
	}
}

func TestService_ResponderUpdate_CriticalAwaitsApproval(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	p := d.dispatch(t, 9)

	got, err := d.svc.SubmitResponderUpdate(ctx, p.QueueID, ResponderUpdate{Symptoms: "slurred speech", ActionsTaken: "oxygen", Notes: "FAST positive"})
	if err != nil {
		t.Fatalf("SubmitResponderUpdate: %v", err)
	}
	if got.Status != StatusAwaitingPlanApproval || got.ResourcePlan == nil {
		t.Fatalf("expected %s with plan, got %s / %v", StatusAwaitingPlanApproval, got.Status, got.ResourcePlan)
	}
	if got.SymptomDescription != "slurred speech" {
		t.Errorf("symptom description not amended: %q", got.SymptomDescription)
	}
	if d.planner.last.Capacity != (HospitalCapacity{Current: 47, Max: 60}) {
		t.Errorf("unexpected capacity %+v", d.planner.last.Capacity)
	}
	if len(d.planner.last.Patient.AmbulanceUpdates) != 1 {
		t.Error("planner should see the field report")
	}
	if len(d.svc.ClinicianQueue()) != 1 {
		t.Error("expected patient on the clinician queue")
	}
}

func TestService_PlannerFailureStallsAndRetries(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	p := d.dispatch(t, 9)
	d.planner.setErr(errors.New("upstream 500"))

	got, err := d.svc.SubmitResponderUpdate(ctx, p.QueueID, ResponderUpdate{Symptoms: "s", ActionsTaken: "a", Notes: "n"})
	if !errors.Is(err, ErrPlanUnavailable) {
		t.Fatalf("expected ErrPlanUnavailable, got %v", err)
	}
	if got.Status != StatusAmbulanceDispatched || len(got.AmbulanceUpdates) != 1 {
		t.Fatalf("expected stalled patient with update kept, got %s / %d", got.Status, len(got.AmbulanceUpdates))
	}
	stored, _ := d.svc.GetPatient(p.QueueID)
	if stored.ResourcePlan != nil {
		t.Error("failed planning left a plan behind")
	}

	d.planner.setErr(nil)
	got, err = d.svc.RequestResourcePlan(ctx, p.QueueID)
	if err != nil {
		t.Fatalf("RequestResourcePlan: %v", err)
	}
	if got.Status != StatusAwaitingPlanApproval {
		t.Errorf("retry should land in %s, got %s", StatusAwaitingPlanApproval, got.Status)
	}
	if len(got.AmbulanceUpdates) != 1 {
		t.Errorf("retry must not re-append the update, got %d", len(got.AmbulanceUpdates))
	}
}

func TestService_RequestResourcePlan_NonCritical(t *testing.T) {
	d := newTestService()
	p, err := d.engine.Register(context.Background(), newTestPatient(5, StatusAmbulanceDispatched))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.svc.RequestResourcePlan(context.Background(), p.QueueID); !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible, got %v", err)
	}
}

func TestService_ResponderUpdateAfterArrivalOnlyAppends(t *testing.T) {
	d := newTestService()
	ctx := context.Background()
	p := d.dispatch(t, 9)

	if _, err := d.svc.SubmitResponderUpdate(ctx, p.QueueID, ResponderUpdate{Symptoms: "s", ActionsTaken: "a", Notes: "n"}); err != nil {
		t.Fatalf("SubmitResponderUpdate: %v", err)
	}
	if _, err := d.svc.ApprovePlan(ctx, p.QueueID, nil); err != nil {
		t.Fatalf("ApprovePlan: %v", err)
	}
	d.engine.Tick(ctx)
	if _, err := d.engine.HandleArrival(ctx, p.QueueID, transit.ToHospital); err != nil {
		t.Fatalf("HandleArrival: %v", err)
	}
	calls := d.planner.calls

	got, err := d.svc.SubmitResponderUpdate(ctx, p.QueueID, ResponderUpdate{Symptoms: "s", ActionsTaken: "handover", Notes: "n"})
	if err != nil {
		t.Fatalf("expected the update to be accepted, got %v", err)
	}
	if got.Status != StatusArrived {
		t.Errorf("expected %s, got %s", StatusArrived, got.Status)
	}
	if len(got.AmbulanceUpdates) != 2 {
		t.Errorf("expected 2 updates, got %d", len(got.AmbulanceUpdates))
	}
	if d.planner.calls != calls {
		t.Errorf("planner called for an arrived patient (%d -> %d)", calls, d.planner.calls)
	}

	if _, err := d.svc.RequestResourcePlan(ctx, p.QueueID); !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible, got %v", err)
	}
	if d.planner.calls != calls {
		t.Error("plan retry should not reach the planner once arrived")
	}
}

// Full critical path with the plan requested at dispatch time.
func TestService_CriticalPathWithPlanOnDispatch(t *testing.T) {
	d := newTestServiceWith(ServiceConfig{PlanOnDispatch: true})
	ctx := context.Background()

	p := d.dispatch(t, 10)
	d.svc.Wait()
	if got, _ := d.svc.GetPatient(p.QueueID); got.ResourcePlan == nil || got.Status != StatusAmbulanceDispatched {
		t.Fatalf("expected plan attached while still dispatched, got %s / %v", got.Status, got.ResourcePlan)
	}

	d.engine.Tick(ctx)
	d.engine.Tick(ctx)
	if got, _ := d.svc.GetPatient(p.QueueID); got.Status != StatusInTransit {
		t.Fatalf("expected %s, got %s", StatusInTransit, got.Status)
	}

	if _, err := d.svc.SubmitResponderUpdate(ctx, p.QueueID, ResponderUpdate{Symptoms: "s", ActionsTaken: "a", Notes: "n"}); err != nil {
		t.Fatalf("SubmitResponderUpdate: %v", err)
	}
	if got, err := d.svc.ApprovePlan(ctx, p.QueueID, nil); err != nil || got.Status != StatusPrepReady {
		t.Fatalf("ApprovePlan: %v / %s", err, got.Status)
	}

	d.svc.SetPrepContext(ctx, true)
	for i := 0; i < 40; i++ {
		d.clock.Advance(time.Second)
		d.engine.Tick(ctx)
	}
	got, _ := d.svc.GetPatient(p.QueueID)
	if got.Status != StatusInTheatre {
		t.Fatalf("expected %s, got %s", StatusInTheatre, got.Status)
	}

	hist, err := d.svc.History(p.QueueID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var path []Status
	for _, ev := range hist {
		if ev.From != ev.To {
			path = append(path, ev.To)
		}
	}
	want := []Status{
		StatusAmbulanceDispatched,
		StatusPrepReady,
		StatusInTransit,
		StatusAwaitingPlanApproval,
		StatusPrepReady,
		StatusInTransit,
		StatusArrived,
		StatusInTheatre,
	}
	if len(path) != len(want) {
		t.Fatalf("expected path %v, got %v", want, path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("expected path %v, got %v", want, path)
		}
	}
}

// -- Reads --

func TestService_ListPatients(t *testing.T) {
	d := newTestService()
	d.dispatch(t, 9)
	if _, err := d.svc.SubmitTriage(context.Background(), TriageSubmission{NHSNumber: "9912003071", Symptoms: "ankle"}); err != nil {
		t.Fatalf("SubmitTriage: %v", err)
	}

	all, err := d.svc.ListPatients("")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 patients, got %d (%v)", len(all), err)
	}
	waiting, err := d.svc.ListPatients(StatusWaitingRemote)
	if err != nil || len(waiting) != 1 {
		t.Fatalf("expected 1 waiting patient, got %d (%v)", len(waiting), err)
	}
	if _, err := d.svc.ListPatients("Nowhere"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_Transit(t *testing.T) {
	d := newTestService()
	p := d.dispatch(t, 9)
	d.clock.Advance(15 * time.Second)

	snap, err := d.svc.Transit(p.QueueID, transit.ToPatient)
	if err != nil {
		t.Fatalf("Transit: %v", err)
	}
	if snap.ProgressPercent != 50 || snap.RemainingSeconds != 15 || snap.RemainingDisplay != "0:15" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if _, err := d.svc.Transit(p.QueueID, transit.ToHospital); !errors.Is(err, ErrLegNotStarted) {
		t.Errorf("expected ErrLegNotStarted, got %v", err)
	}
}

// -- Advice --

func TestService_Chat(t *testing.T) {
	d := newTestService()
	ctx := context.Background()

	reply, err := d.svc.Chat(ctx, ChatRequest{Message: "How long?"})
	if err != nil || reply == "" {
		t.Fatalf("Chat: %q %v", reply, err)
	}
	if d.advisor.chat.Persona != PersonaParamedic {
		t.Errorf("expected default persona %s, got %s", PersonaParamedic, d.advisor.chat.Persona)
	}
	if _, err := d.svc.Chat(ctx, ChatRequest{Persona: "pilot", Message: "hi"}); err == nil || !strings.Contains(err.Error(), "persona") {
		t.Errorf("expected persona error, got %v", err)
	}
	if _, err := d.svc.Chat(ctx, ChatRequest{}); err == nil {
		t.Error("expected error for empty message")
	}

	d.advisor.err = errors.New("down")
	if _, err := d.svc.FirstAid(ctx, "bleeding"); !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}
