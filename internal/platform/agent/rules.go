package agent

import (
	"context"
	"strings"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

// BleedingQuestion is asked when a laceration video arrives without any
// indication of active bleeding.
const BleedingQuestion = "Is the wound actively bleeding?"

// Rules implements the collaborators with fixed keyword rules. It never
// fails and never calls out.
type Rules struct{}

// Assess scores the submission from the video filename and symptom text.
func (Rules) Assess(_ context.Context, req patientflow.TriageRequest) (*patientflow.TriageResult, error) {
	video := strings.ToLower(req.VideoFilename)
	symptoms := strings.ToLower(req.Symptoms)

	if strings.Contains(video, "laceration") {
		bleeding, answered := bleedingAnswer(symptoms, req.Conversation)
		if !answered {
			return &patientflow.TriageResult{NeedsMoreInfo: true, Question: BleedingQuestion}, nil
		}
		if bleeding {
			return result(9, "Severe laceration with active bleeding.", "Apply firm pressure to the wound with a clean cloth."), nil
		}
	}

	switch {
	case strings.Contains(video, "ankle_no_weight"):
		return result(7, "Musculoskeletal injury. Patient unable to bear weight.", "Keep the limb elevated and still."), nil
	case strings.Contains(video, "ankle_limp"):
		return result(4, "Musculoskeletal injury. Impaired gait (limp).", "Rest and apply ice wrapped in a cloth."), nil
	case strings.Contains(symptoms, "face drooping"),
		strings.Contains(symptoms, "face is drooping"),
		strings.Contains(video, "stroke"):
		return result(10, "Suspected stroke symptoms.", "Stay still and note the time symptoms started."), nil
	}
	return result(3, "Minor injury or illness.", "Rest and monitor symptoms."), nil
}

func result(severity int, notes, advice string) *patientflow.TriageResult {
	return &patientflow.TriageResult{
		Severity:        severity,
		TriageNotes:     notes,
		Recommendations: advice,
	}
}

// bleedingAnswer looks for bleeding in the symptoms first, then for the
// caller's last yes/no reply.
func bleedingAnswer(symptoms string, conv []patientflow.ChatTurn) (bleeding, answered bool) {
	if strings.Contains(symptoms, "not bleeding") || strings.Contains(symptoms, "no bleeding") {
		return false, true
	}
	if strings.Contains(symptoms, "bleeding") {
		return true, true
	}
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role != "user" {
			continue
		}
		reply := strings.ToLower(strings.TrimSpace(conv[i].Content))
		switch {
		case strings.HasPrefix(reply, "yes"):
			return true, true
		case strings.HasPrefix(reply, "no"):
			return false, true
		}
	}
	return false, false
}

// Plan picks a stroke, trauma or standard protocol from the triage notes.
func (Rules) Plan(_ context.Context, req patientflow.PlanRequest) (*patientflow.ResourcePlan, error) {
	notes := strings.ToLower(req.Patient.TriageNotes)
	switch {
	case strings.Contains(notes, "stroke"):
		return &patientflow.ResourcePlan{
			PlanText:          "1. Reserve Stroke Bay 2.\n2. Page On-Call Neurologist.\n3. Prep CT Scanner.",
			Entrance:          "Ambulance Bay Z",
			RoomAssignment:    "Stroke Bay 2",
			SpecialistsNeeded: []string{"On-Call Neurologist"},
			EquipmentRequired: []string{"CT Scanner"},
			Priority:          "HIGH",
		}, nil
	case strings.Contains(notes, "laceration"):
		return &patientflow.ResourcePlan{
			PlanText:          "1. Assign to Trauma Room 3.\n2. Page On-Call Surgeon.\n3. Prep Suture Kit.",
			Entrance:          "Ambulance Bay A",
			RoomAssignment:    "Trauma Room 3",
			SpecialistsNeeded: []string{"On-Call Surgeon"},
			EquipmentRequired: []string{"Suture Kit"},
			Priority:          "HIGH",
		}, nil
	}
	return &patientflow.ResourcePlan{
		PlanText:       "Assign to A&E General Pod.",
		Entrance:       "Main Entrance",
		RoomAssignment: "General Pod",
		Priority:       "MEDIUM",
	}, nil
}

// FirstAid returns generic instructions.
func (Rules) FirstAid(_ context.Context, symptoms string) (string, error) {
	s := strings.ToLower(symptoms)
	switch {
	case strings.Contains(s, "bleed"), strings.Contains(s, "cut"), strings.Contains(s, "laceration"):
		return "- Press firmly on the wound with a clean cloth.\n- Keep pressing and do not lift to check.\n- Raise the injured part if you can.\n- The ambulance (999) is on the way.", nil
	case strings.Contains(s, "face"), strings.Contains(s, "stroke"), strings.Contains(s, "slurred"):
		return "- Note the time the symptoms started.\n- Keep them comfortable and do not give food or drink.\n- If they become unresponsive, put them in the recovery position.\n- The ambulance (999) is on the way.", nil
	}
	return "Stay calm. Help is on the way.", nil
}

// Chat returns a canned reply for the persona.
func (Rules) Chat(_ context.Context, req patientflow.ChatRequest) (string, error) {
	if req.Persona == patientflow.PersonaCaller {
		return "Ok, I'll try... please hurry!", nil
	}
	return "We're almost there, hang tight.", nil
}
