package patientflow

import (
	"time"

	"github.com/google/uuid"
)

// Status is a patient's position in the A&E pipeline.
type Status string

const (
	StatusWaitingRemote        Status = "Waiting (Remote)"
	StatusInWaitingLobby       Status = "In Waiting Lobby"
	StatusAmbulanceDispatched  Status = "Ambulance Dispatched"
	StatusPrepReady            Status = "Prep Ready"
	StatusInTransit            Status = "In Transit"
	StatusAwaitingPlanApproval Status = "Awaiting Plan Approval"
	StatusMovingToTheatre      Status = "Moving to Operation Theatre"
	StatusArrived              Status = "Arrived"
	StatusInTheatre            Status = "In Operation Theatre"
)

// AllStatuses lists every valid status in pipeline order.
var AllStatuses = []Status{
	StatusWaitingRemote,
	StatusInWaitingLobby,
	StatusAmbulanceDispatched,
	StatusPrepReady,
	StatusInTransit,
	StatusAwaitingPlanApproval,
	StatusMovingToTheatre,
	StatusArrived,
	StatusInTheatre,
}

// Valid reports whether s is one of the fixed statuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CriticalSeverity is the lowest severity routed through resource planning
// and clinician approval.
const CriticalSeverity = 8

// IsCritical reports whether severity admits a patient to the
// resource-planning branch.
func IsCritical(severity int) bool {
	return severity >= CriticalSeverity
}

// ResourcePlan is the hospital preparation plan produced by the resource
// planner and reviewed by a clinician.
type ResourcePlan struct {
	PlanText          string   `json:"plan_text"`
	Entrance          string   `json:"entrance"`
	RoomAssignment    string   `json:"room_assignment,omitempty"`
	SpecialistsNeeded []string `json:"specialists_needed,omitempty"`
	EquipmentRequired []string `json:"equipment_required,omitempty"`
	StaffToContact    []string `json:"staff_to_contact,omitempty"`
	AreasToClear      []string `json:"areas_to_clear,omitempty"`
	Priority          string   `json:"priority,omitempty"`
}

func (p *ResourcePlan) clone() *ResourcePlan {
	if p == nil {
		return nil
	}
	c := *p
	c.SpecialistsNeeded = append([]string(nil), p.SpecialistsNeeded...)
	c.EquipmentRequired = append([]string(nil), p.EquipmentRequired...)
	c.StaffToContact = append([]string(nil), p.StaffToContact...)
	c.AreasToClear = append([]string(nil), p.AreasToClear...)
	return &c
}

// AmbulanceUpdate is one field report from the first responder.
type AmbulanceUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Video     string    `json:"video,omitempty"`
}

// Patient is the central record shared by every role.
type Patient struct {
	QueueID              uuid.UUID         `json:"queue_id"`
	PatientName          string            `json:"patient_name"`
	NHSNumber            string            `json:"nhs_number"`
	Severity             int               `json:"severity"`
	Status               Status            `json:"status"`
	TriageNotes          string            `json:"triage_notes"`
	SymptomDescription   string            `json:"symptom_description,omitempty"`
	VideoFilename        string            `json:"video_filename,omitempty"`
	ETAMinutes           float64           `json:"eta_minutes,omitempty"`
	DispatchTime         *time.Time        `json:"dispatch_time,omitempty"`
	PrepTabDispatchTime  *time.Time        `json:"prep_tab_dispatch_time,omitempty"`
	AmbulanceAtScene     bool              `json:"ambulance_at_scene"`
	HasArrivedAtHospital bool              `json:"has_arrived_at_hospital"`
	ArrivedAt            *time.Time        `json:"arrived_at,omitempty"`
	ResourcePlan         *ResourcePlan     `json:"resource_plan,omitempty"`
	AmbulanceUpdates     []AmbulanceUpdate `json:"ambulance_updates"`
	WaitMinutes          int               `json:"wait_minutes,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or pointers with
// the store.
func (p Patient) Clone() Patient {
	c := p
	c.DispatchTime = cloneTime(p.DispatchTime)
	c.PrepTabDispatchTime = cloneTime(p.PrepTabDispatchTime)
	c.ArrivedAt = cloneTime(p.ArrivedAt)
	c.ResourcePlan = p.ResourcePlan.clone()
	c.AmbulanceUpdates = make([]AmbulanceUpdate, len(p.AmbulanceUpdates))
	copy(c.AmbulanceUpdates, p.AmbulanceUpdates)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TransitionEvent records one applied status change or pulse.
type TransitionEvent struct {
	QueueID     uuid.UUID `json:"queue_id"`
	PatientName string    `json:"patient_name"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Rule        Rule      `json:"rule"`
	At          time.Time `json:"at"`
}

// Rule names the trigger behind a TransitionEvent.
type Rule string

const (
	RuleRegistered       Rule = "registered"
	RuleDispatched       Rule = "dispatched"
	RuleLobbyArrival     Rule = "lobby_arrival"
	RulePlanReady        Rule = "plan_ready"
	RulePlanAttached     Rule = "plan_attached"
	RuleDispatchStamped  Rule = "dispatch_stamped"
	RuleResponderUpdate  Rule = "responder_update"
	RulePlanRequested    Rule = "plan_requested"
	RulePlanApproved     Rule = "plan_approved"
	RuleAtScene          Rule = "ambulance_at_scene"
	RuleHospitalArrival  Rule = "hospital_arrival"
	RuleArrivalSettled   Rule = "arrival_settled"
	RuleTheatreHandover  Rule = "theatre_handover"
	RuleHospitalLegStart Rule = "hospital_leg_started"
)
