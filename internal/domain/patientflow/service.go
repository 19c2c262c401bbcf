package patientflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/transit"
)

// fallbackFirstAid is returned when the advisor is unavailable at dispatch.
const fallbackFirstAid = "Stay calm. Help is on the way."

// ServiceConfig selects the receiving hospital and dispatch behaviour.
type ServiceConfig struct {
	HospitalID string
	RouteKM    float64
	// PlanOnDispatch requests a resource plan in the background as soon as
	// an ambulance is dispatched.
	PlanOnDispatch bool
	PlanTimeout    time.Duration
}

type Service struct {
	engine  *Engine
	dir     Directory
	triage  TriageAssessor
	planner ResourcePlanner
	advisor Advisor
	cfg     ServiceConfig
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewService(engine *Engine, dir Directory, triage TriageAssessor, planner ResourcePlanner, advisor Advisor, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.HospitalID == "" {
		cfg.HospitalID = DefaultHospitalID
	}
	if cfg.RouteKM <= 0 {
		cfg.RouteKM = transit.DefaultRouteKM
	}
	if cfg.PlanTimeout <= 0 {
		cfg.PlanTimeout = 30 * time.Second
	}
	return &Service{
		engine:  engine,
		dir:     dir,
		triage:  triage,
		planner: planner,
		advisor: advisor,
		cfg:     cfg,
		logger:  logger.With().Str("component", "patientflow.service").Logger(),
	}
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine { return s.engine }

// Wait blocks until background plan requests have finished.
func (s *Service) Wait() { s.wg.Wait() }

// -- Remote triage --

type TriageSubmission struct {
	NHSNumber     string     `json:"nhs_number"`
	Symptoms      string     `json:"symptoms"`
	VideoFilename string     `json:"video_filename,omitempty"`
	Conversation  []ChatTurn `json:"conversation,omitempty"`
}

type TriageOutcome struct {
	Assessment       TriageResult `json:"assessment"`
	NeedsMoreInfo    bool         `json:"needs_more_info"`
	Question         string       `json:"question,omitempty"`
	Conversation     []ChatTurn   `json:"conversation,omitempty"`
	RequiresDispatch bool         `json:"requires_dispatch"`
	Patient          *Patient     `json:"patient,omitempty"`
}

// SubmitTriage assesses a remote patient. Only non-critical patients are
// registered here; critical ones wait for ConfirmDispatch.
func (s *Service) SubmitTriage(ctx context.Context, sub TriageSubmission) (*TriageOutcome, error) {
	if strings.TrimSpace(sub.Symptoms) == "" {
		return nil, fmt.Errorf("symptoms are required")
	}
	person, err := s.dir.Person(sub.NHSNumber)
	if err != nil {
		return nil, err
	}

	res, err := s.triage.Assess(ctx, TriageRequest{
		Symptoms:      sub.Symptoms,
		VideoFilename: sub.VideoFilename,
		Conversation:  sub.Conversation,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("nhs_number", sub.NHSNumber).Msg("triage assessment failed")
		return nil, fmt.Errorf("triage assessment: %w: %v", ErrUpstream, err)
	}

	out := &TriageOutcome{Assessment: *res}
	if res.NeedsMoreInfo && res.Question != "" {
		out.NeedsMoreInfo = true
		out.Question = res.Question
		out.Conversation = append(append([]ChatTurn(nil), sub.Conversation...), ChatTurn{Role: "assistant", Content: res.Question})
		return out, nil
	}
	if res.Severity < 1 || res.Severity > 10 {
		return nil, fmt.Errorf("triage returned severity %d: %w", res.Severity, ErrInvalidSeverity)
	}
	if IsCritical(res.Severity) {
		out.RequiresDispatch = true
		return out, nil
	}

	p, err := s.engine.Register(ctx, Patient{
		PatientName:        person.Name,
		NHSNumber:          person.NHSNumber,
		Severity:           res.Severity,
		Status:             StatusWaitingRemote,
		TriageNotes:        res.TriageNotes,
		SymptomDescription: sub.Symptoms,
		VideoFilename:      sub.VideoFilename,
		WaitMinutes:        EstimateWait(res.Severity, s.engine.store.Len()),
	})
	if err != nil {
		return nil, err
	}
	out.Patient = &p
	return out, nil
}

// -- Dispatch --

type DispatchRequest struct {
	NHSNumber     string `json:"nhs_number"`
	Symptoms      string `json:"symptoms"`
	VideoFilename string `json:"video_filename,omitempty"`
	Severity      int    `json:"severity"`
	TriageNotes   string `json:"triage_notes"`
}

type DispatchOutcome struct {
	Patient  Patient `json:"patient"`
	FirstAid string  `json:"first_aid"`
}

// ConfirmDispatch registers a critical patient with an ambulance on its way
// and returns first-aid instructions for the caller.
func (s *Service) ConfirmDispatch(ctx context.Context, req DispatchRequest) (*DispatchOutcome, error) {
	person, err := s.dir.Person(req.NHSNumber)
	if err != nil {
		return nil, err
	}
	if req.Severity < 1 || req.Severity > 10 {
		return nil, ErrInvalidSeverity
	}
	if !IsCritical(req.Severity) {
		return nil, fmt.Errorf("severity %d does not warrant dispatch: %w", req.Severity, ErrNotEligible)
	}

	now := s.engine.Clock().Now()
	p, err := s.engine.Register(ctx, Patient{
		PatientName:        person.Name,
		NHSNumber:          person.NHSNumber,
		Severity:           req.Severity,
		Status:             StatusAmbulanceDispatched,
		TriageNotes:        req.TriageNotes,
		SymptomDescription: req.Symptoms,
		VideoFilename:      req.VideoFilename,
		ETAMinutes:         s.engine.Config().DefaultETAMinutes,
		DispatchTime:       &now,
	})
	if err != nil {
		return nil, err
	}

	advice, err := s.advisor.FirstAid(ctx, req.Symptoms)
	if err != nil || strings.TrimSpace(advice) == "" {
		s.logger.Error().Err(err).Str("queue_id", p.QueueID.String()).Msg("first-aid instructions unavailable")
		advice = fallbackFirstAid
	}

	if s.cfg.PlanOnDispatch {
		s.planInBackground(ctx, p.QueueID)
	}
	return &DispatchOutcome{Patient: p, FirstAid: advice}, nil
}

func (s *Service) planInBackground(ctx context.Context, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.cfg.PlanTimeout)
		defer cancel()
		if _, err := s.RequestResourcePlan(ctx, id); err != nil && !errors.Is(err, ErrNotEligible) {
			s.logger.Error().Err(err).Str("queue_id", id.String()).Msg("background resource plan failed")
		}
	}()
}

// -- Lobby --

func (s *Service) MarkLobbyArrival(ctx context.Context, id uuid.UUID) (Patient, error) {
	return s.engine.MarkLobbyArrival(ctx, id)
}

// -- Responder --

type ResponderUpdate struct {
	Symptoms     string  `json:"symptoms"`
	ActionsTaken string  `json:"actions_taken"`
	Notes        string  `json:"notes"`
	Video        string  `json:"video,omitempty"`
	ETAMinutes   float64 `json:"eta_minutes,omitempty"`
}

// Text renders the update the way it is stored on the patient.
func (u ResponderUpdate) Text() string {
	return fmt.Sprintf("Symptoms: %s. Actions taken: %s. Additional notes: %s", u.Symptoms, u.ActionsTaken, u.Notes)
}

// SubmitResponderUpdate records a field report. For critical patients that
// can still go to plan approval it then requests a resource plan; if planning
// fails the report is kept, the status is left alone and the error wraps
// ErrPlanUnavailable. Later reports are only appended.
func (s *Service) SubmitResponderUpdate(ctx context.Context, id uuid.UUID, u ResponderUpdate) (Patient, error) {
	p, err := s.engine.ApplyResponderUpdate(ctx, id, ResponderReport{
		Text:               u.Text(),
		Video:              u.Video,
		SymptomDescription: u.Symptoms,
		ETAMinutes:         u.ETAMinutes,
	})
	if err != nil {
		return Patient{}, err
	}
	if !PlanAttachable(p, true) {
		return p, nil
	}
	planned, err := s.RequestResourcePlan(ctx, id)
	if err != nil {
		return p, err
	}
	return planned, nil
}

// RequestResourcePlan asks the planner for a plan for a critical patient. A
// plan requested after the responder has reported needs clinician approval;
// one requested before only unblocks the Prep Ready promotion.
func (s *Service) RequestResourcePlan(ctx context.Context, id uuid.UUID) (Patient, error) {
	p, err := s.engine.Patient(id)
	if err != nil {
		return Patient{}, err
	}
	awaitApproval := len(p.AmbulanceUpdates) > 0
	if !PlanAttachable(p, awaitApproval) {
		return p, ErrNotEligible
	}
	hospital, err := s.dir.Hospital(s.cfg.HospitalID)
	if err != nil {
		return p, err
	}

	plan, err := s.planner.Plan(ctx, PlanRequest{Patient: p, Capacity: hospital.Capacity()})
	if err != nil {
		s.logger.Error().Err(err).Str("queue_id", id.String()).Msg("resource planning failed")
		return p, fmt.Errorf("%w: %v", ErrPlanUnavailable, err)
	}
	return s.engine.AttachPlan(ctx, id, plan, awaitApproval)
}

// -- Clinician --

func (s *Service) ApprovePlan(ctx context.Context, id uuid.UUID, edited *ResourcePlan) (Patient, error) {
	return s.engine.ApprovePlan(ctx, id, edited)
}

// -- Reads --

func (s *Service) GetPatient(id uuid.UUID) (Patient, error) {
	return s.engine.Patient(id)
}

func (s *Service) ListPatients(status Status) ([]Patient, error) {
	all := s.engine.Patients()
	if status == "" {
		return all, nil
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}
	return FilterByStatus(all, status), nil
}

func (s *Service) History(id uuid.UUID) ([]TransitionEvent, error) {
	if _, err := s.engine.Patient(id); err != nil {
		return nil, err
	}
	return s.engine.History(id), nil
}

// Transit returns the live position of one leg.
func (s *Service) Transit(id uuid.UUID, dir transit.Direction) (transit.Snapshot, error) {
	p, err := s.engine.Patient(id)
	if err != nil {
		return transit.Snapshot{}, err
	}
	leg, ok := Leg(p, dir)
	if !ok {
		return transit.Snapshot{}, fmt.Errorf("%s: %w", dir, ErrLegNotStarted)
	}
	return leg.Snap(s.engine.Clock().Now(), s.cfg.RouteKM), nil
}

func (s *Service) OpsQueue() []Patient       { return OpsQueue(s.engine.Patients()) }
func (s *Service) OpsStats() Stats           { return ComputeStats(s.engine.Patients()) }
func (s *Service) PrepBoard() []Patient      { return PrepBoard(s.engine.Patients()) }
func (s *Service) ClinicianQueue() []Patient { return ClinicianQueue(s.engine.Patients()) }
func (s *Service) ResponderActive() *Patient { return ResponderActive(s.engine.Patients()) }

func (s *Service) SetPrepContext(ctx context.Context, active bool) {
	s.engine.SetPrepContext(ctx, active)
}

// -- Advice --

func (s *Service) FirstAid(ctx context.Context, symptoms string) (string, error) {
	if strings.TrimSpace(symptoms) == "" {
		return "", fmt.Errorf("symptoms are required")
	}
	advice, err := s.advisor.FirstAid(ctx, symptoms)
	if err != nil {
		return "", fmt.Errorf("first aid: %w: %v", ErrUpstream, err)
	}
	return advice, nil
}

func (s *Service) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("message is required")
	}
	switch req.Persona {
	case PersonaParamedic, PersonaCaller:
	case "":
		req.Persona = PersonaParamedic
	default:
		return "", fmt.Errorf("unknown chat persona %q", req.Persona)
	}
	reply, err := s.advisor.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat: %w: %v", ErrUpstream, err)
	}
	return reply, nil
}
