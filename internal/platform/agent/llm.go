package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

const triageSystemPrompt = `You are an expert medical triage agent. Assess patient severity quickly and decisively.
Ask AT MOST ONE clarifying question, and only if it is critical for safety. In most cases assess immediately.`

const triageUserPrompt = `Patient Information:
- Symptoms: %s
- Video assessment: %s

%sAssess severity (1-10):
- 1-3: Minor (sprains, minor cuts)
- 4-6: Moderate (fractures, severe pain)
- 7-9: Serious (deep lacerations, suspected internal injuries)
- 10: Critical/Life-threatening (stroke, heart attack, severe trauma)

Respond in JSON format:
{"severity": number, "triageNotes": "assessment notes", "recommendations": "advice to the patient", "needsMoreInfo": boolean, "question": "only if needsMoreInfo"}`

const planSystemPrompt = `You are an expert hospital operations agent. Optimise patient flow and resource allocation by generating operational plans for incoming emergency patients.`

const planUserPrompt = `Create a resource allocation plan for this incoming patient:

- Name: %s
- NHS Number: %s
- Severity: %d/10
- Triage Notes: %s
- ETA: %g minutes

Hospital capacity: %d/%d. Available specialties: Emergency Medicine, Trauma Surgery, Neurology, Cardiology.

Choose an ambulance entrance (Ambulance Bay A, B, Z, or Main Entrance), the room or bay to prepare, specialists to page, equipment, staff to contact and areas to clear.

Respond in JSON format:
{"entrance": "", "roomAssignment": "", "specialistsNeeded": [], "equipmentRequired": [], "staffToContact": [], "areasToClear": [], "planText": "numbered steps", "priority": "HIGH/MEDIUM/LOW"}`

const firstAidSystemPrompt = `You are a UK NHS first-aid assistant giving simple instructions to civilians until emergency services arrive.
Use short sentences and bullet points. Give 3-5 immediate actions. Avoid medical jargon. Remind them the ambulance (999) is on the way.`

const paramedicSystemPrompt = `You are an NHS ambulance paramedic en route to a patient emergency in the UK, texting the patient or their companion while driving.
Be calm, warm and professional. Use everyday British English. Keep replies to 1-3 sentences. Never use markdown.
Patient context: %s`

const callerSystemPrompt = `You are a distressed person in the UK who called 999 and is texting the paramedic team en route.
You are scared but trying to follow instructions. Use natural British English. Keep replies to 1-3 sentences. Never use markdown.
Patient context: %s`

// LLM implements the collaborators on top of a chat completions Client.
type LLM struct {
	client *Client
}

// NewLLM wraps client.
func NewLLM(client *Client) *LLM {
	return &LLM{client: client}
}

// Assess scores a triage submission.
func (l *LLM) Assess(ctx context.Context, req patientflow.TriageRequest) (*patientflow.TriageResult, error) {
	var history string
	if len(req.Conversation) > 0 {
		var b strings.Builder
		b.WriteString("Previous conversation:\n")
		for _, turn := range req.Conversation {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
		history = b.String()
	}

	msgs := []message{
		{Role: "system", Content: triageSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(triageUserPrompt, req.Symptoms, req.VideoFilename, history)},
	}

	var res patientflow.TriageResult
	if err := l.client.completeJSON(ctx, msgs, call{temperature: 0.3, maxTokens: 800}, &res); err != nil {
		return nil, fmt.Errorf("triage: %w", err)
	}
	return &res, nil
}

// llmPlan is the planner's JSON shape.
type llmPlan struct {
	Entrance          string   `json:"entrance"`
	RoomAssignment    string   `json:"roomAssignment"`
	SpecialistsNeeded []string `json:"specialistsNeeded"`
	EquipmentRequired []string `json:"equipmentRequired"`
	StaffToContact    []string `json:"staffToContact"`
	AreasToClear      []string `json:"areasToClear"`
	PlanText          string   `json:"planText"`
	Priority          string   `json:"priority"`
}

// Plan produces a resource plan for an incoming critical patient.
func (l *LLM) Plan(ctx context.Context, req patientflow.PlanRequest) (*patientflow.ResourcePlan, error) {
	p := req.Patient
	msgs := []message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(planUserPrompt,
			p.PatientName, p.NHSNumber, p.Severity, p.TriageNotes, p.ETAMinutes,
			req.Capacity.Current, req.Capacity.Max)},
	}

	var out llmPlan
	if err := l.client.completeJSON(ctx, msgs, call{temperature: 0.3, maxTokens: 1500}, &out); err != nil {
		return nil, fmt.Errorf("resource plan: %w", err)
	}
	if out.PlanText == "" || out.Entrance == "" {
		return nil, fmt.Errorf("resource plan: incomplete plan")
	}
	return &patientflow.ResourcePlan{
		PlanText:          out.PlanText,
		Entrance:          out.Entrance,
		RoomAssignment:    out.RoomAssignment,
		SpecialistsNeeded: out.SpecialistsNeeded,
		EquipmentRequired: out.EquipmentRequired,
		StaffToContact:    out.StaffToContact,
		AreasToClear:      out.AreasToClear,
		Priority:          out.Priority,
	}, nil
}

// FirstAid returns lay first-aid instructions for symptoms.
func (l *LLM) FirstAid(ctx context.Context, symptoms string) (string, error) {
	msgs := []message{
		{Role: "system", Content: firstAidSystemPrompt},
		{Role: "user", Content: "Patient symptoms: " + symptoms + "\n\nProvide simple first-aid instructions while waiting for the ambulance."},
	}
	text, err := l.client.complete(ctx, msgs, call{temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("first aid: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Chat answers one message in the requested persona.
func (l *LLM) Chat(ctx context.Context, req patientflow.ChatRequest) (string, error) {
	system := paramedicSystemPrompt
	if req.Persona == patientflow.PersonaCaller {
		system = callerSystemPrompt
	}
	msgs := []message{
		{Role: "system", Content: fmt.Sprintf(system, req.PatientContext)},
		{Role: "user", Content: req.Message},
	}
	text, err := l.client.complete(ctx, msgs, call{temperature: 0.7, maxTokens: 200})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return cleanChat(text), nil
}

var (
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdCode    = regexp.MustCompile("`([^`]+)`")
	mdHeading = regexp.MustCompile(`#{1,6}\s`)
	blankRuns = regexp.MustCompile(`\n{2,}`)
)

// cleanChat strips markdown so chat replies read as plain text messages.
func cleanChat(s string) string {
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "__", "")
	s = blankRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
