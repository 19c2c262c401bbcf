package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

// fakeLLM serves canned chat completions and records the last request.
type fakeLLM struct {
	status  int
	content string
	last    completionRequest
	auth    string
	calls   int
}

func (f *fakeLLM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls++
	f.auth = r.Header.Get("Authorization")
	_ = json.NewDecoder(r.Body).Decode(&f.last)
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": f.content}},
		},
	})
}

func newFakeClient(t *testing.T, f *fakeLLM) *LLM {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewLLM(NewClient(Config{URL: srv.URL, APIKey: "test-key", Timeout: 5 * time.Second}))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	if c.URL != DefaultURL {
		t.Errorf("expected default url, got %s", c.URL)
	}
	if c.Model != DefaultModel {
		t.Errorf("expected default model, got %s", c.Model)
	}
	if c.HTTPClient.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", c.HTTPClient.Timeout)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLLM_Assess(t *testing.T) {
	f := &fakeLLM{content: "```json\n{\"severity\":9,\"triageNotes\":\"Deep laceration\",\"recommendations\":\"Apply pressure\",\"needsMoreInfo\":false}\n```"}
	l := newFakeClient(t, f)

	res, err := l.Assess(context.Background(), patientflow.TriageRequest{
		Symptoms:      "deep cut on arm",
		VideoFilename: "laceration.mp4",
		Conversation:  []patientflow.ChatTurn{{Role: "user", Content: "yes it is bleeding"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Severity != 9 || res.TriageNotes != "Deep laceration" {
		t.Errorf("unexpected result: %+v", res)
	}
	if f.auth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", f.auth)
	}
	if f.last.ResponseFormat == nil || f.last.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format")
	}
	if len(f.last.Messages) != 2 || !strings.Contains(f.last.Messages[1].Content, "yes it is bleeding") {
		t.Error("expected conversation history in the user prompt")
	}
}

func TestLLM_Assess_UpstreamError(t *testing.T) {
	f := &fakeLLM{status: http.StatusTooManyRequests}
	l := newFakeClient(t, f)

	_, err := l.Assess(context.Background(), patientflow.TriageRequest{Symptoms: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestLLM_Assess_BadJSON(t *testing.T) {
	f := &fakeLLM{content: "not json"}
	l := newFakeClient(t, f)

	if _, err := l.Assess(context.Background(), patientflow.TriageRequest{Symptoms: "x"}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLLM_Plan(t *testing.T) {
	f := &fakeLLM{content: `{"entrance":"Ambulance Bay Z","roomAssignment":"Stroke Bay 2","specialistsNeeded":["Neurologist"],"planText":"1. Reserve Stroke Bay 2.","priority":"HIGH"}`}
	l := newFakeClient(t, f)

	p := patientflow.Patient{QueueID: uuid.New(), PatientName: "Sarah Johnson", NHSNumber: "1234567890", Severity: 10, TriageNotes: "Suspected stroke"}
	plan, err := l.Plan(context.Background(), patientflow.PlanRequest{Patient: p, Capacity: patientflow.HospitalCapacity{Current: 40, Max: 50}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Entrance != "Ambulance Bay Z" || plan.RoomAssignment != "Stroke Bay 2" {
		t.Errorf("unexpected plan: %+v", plan)
	}
	if len(plan.SpecialistsNeeded) != 1 {
		t.Errorf("expected 1 specialist, got %v", plan.SpecialistsNeeded)
	}
	if !strings.Contains(f.last.Messages[1].Content, "40/50") {
		t.Error("expected capacity in the prompt")
	}
}

func TestLLM_Plan_Incomplete(t *testing.T) {
	f := &fakeLLM{content: `{"priority":"HIGH"}`}
	l := newFakeClient(t, f)

	if _, err := l.Plan(context.Background(), patientflow.PlanRequest{}); err == nil {
		t.Fatal("expected error for a plan without text or entrance")
	}
}

func TestLLM_Chat_CleansMarkdown(t *testing.T) {
	f := &fakeLLM{content: "**Stay** with them.\n\nSee [guide](http://x) and `press` hard."}
	l := newFakeClient(t, f)

	got, err := l.Chat(context.Background(), patientflow.ChatRequest{Persona: patientflow.PersonaParamedic, Message: "help"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Stay with them. See guide and press hard."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if f.last.ResponseFormat != nil {
		t.Error("chat should not request json output")
	}
}

func TestLLM_Chat_CallerPersona(t *testing.T) {
	f := &fakeLLM{content: "Please hurry"}
	l := newFakeClient(t, f)

	_, err := l.Chat(context.Background(), patientflow.ChatRequest{Persona: patientflow.PersonaCaller, Message: "keep pressure on", PatientContext: "laceration"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(f.last.Messages[0].Content, "called 999") {
		t.Error("expected caller system prompt")
	}
	if !strings.Contains(f.last.Messages[0].Content, "laceration") {
		t.Error("expected patient context in system prompt")
	}
}

func TestLLM_FirstAid(t *testing.T) {
	f := &fakeLLM{content: "  - Apply pressure.\n"}
	l := newFakeClient(t, f)

	got, err := l.FirstAid(context.Background(), "bleeding arm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "- Apply pressure." {
		t.Errorf("got %q", got)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	f := &fakeLLM{content: "ok"}
	l := newFakeClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.FirstAid(ctx, "x"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestNew_SelectsMode(t *testing.T) {
	logger := zerolog.Nop()

	s := New(Config{}, logger)
	if s.Mode != "rules" {
		t.Errorf("expected rules mode, got %s", s.Mode)
	}
	if _, ok := s.Triage.(Rules); !ok {
		t.Errorf("expected Rules triage, got %T", s.Triage)
	}

	s = New(Config{APIKey: "k"}, logger)
	if s.Mode != "llm" {
		t.Errorf("expected llm mode, got %s", s.Mode)
	}
	if _, ok := s.Planner.(*LLM); !ok {
		t.Errorf("expected *LLM planner, got %T", s.Planner)
	}
}
