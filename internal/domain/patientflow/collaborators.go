package patientflow

import "context"

// ChatTurn is one message of a triage or chat conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TriageRequest is the input to a triage assessment.
type TriageRequest struct {
	Symptoms      string     `json:"symptoms"`
	VideoFilename string     `json:"video_filename,omitempty"`
	Conversation  []ChatTurn `json:"conversation,omitempty"`
}

// TriageResult is a triage assessment. Question is set only when
// NeedsMoreInfo is true.
type TriageResult struct {
	Severity        int    `json:"severity"`
	TriageNotes     string `json:"triageNotes"`
	Recommendations string `json:"recommendations"`
	NeedsMoreInfo   bool   `json:"needsMoreInfo"`
	Question        string `json:"question,omitempty"`
}

// HospitalCapacity is the bed occupancy passed to the resource planner.
type HospitalCapacity struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// PlanRequest is the input to resource planning.
type PlanRequest struct {
	Patient  Patient          `json:"patient"`
	Capacity HospitalCapacity `json:"hospitalCapacity"`
}

// ChatPersona selects who the chat collaborator speaks as.
type ChatPersona string

const (
	// PersonaParamedic answers the caller as the crew en route.
	PersonaParamedic ChatPersona = "paramedic"
	// PersonaCaller answers the crew as the person who called 999.
	PersonaCaller ChatPersona = "caller"
)

// ChatRequest is one chat message with its patient context.
type ChatRequest struct {
	Persona        ChatPersona `json:"persona"`
	Message        string      `json:"message"`
	PatientContext string      `json:"patient_context,omitempty"`
}

// TriageAssessor scores symptoms.
type TriageAssessor interface {
	Assess(ctx context.Context, req TriageRequest) (*TriageResult, error)
}

// ResourcePlanner produces hospital preparation plans.
type ResourcePlanner interface {
	Plan(ctx context.Context, req PlanRequest) (*ResourcePlan, error)
}

// Advisor gives advisory text. Nothing it returns affects patient state.
type Advisor interface {
	FirstAid(ctx context.Context, symptoms string) (string, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
