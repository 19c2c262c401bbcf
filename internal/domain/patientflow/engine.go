package patientflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/transit"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/pkg/clock"
)

// Config holds the engine timer periods and leg defaults.
type Config struct {
	PrepReadyInterval   time.Duration
	InTransitInterval   time.Duration
	ArrivalPollInterval time.Duration
	PrepStampInterval   time.Duration
	SettleDelay         time.Duration
	DefaultETAMinutes   float64
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		PrepReadyInterval:   3 * time.Second,
		InTransitInterval:   2 * time.Second,
		ArrivalPollInterval: time.Second,
		PrepStampInterval:   time.Second,
		SettleDelay:         3 * time.Second,
		DefaultETAMinutes:   0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PrepReadyInterval <= 0 {
		c.PrepReadyInterval = d.PrepReadyInterval
	}
	if c.InTransitInterval <= 0 {
		c.InTransitInterval = d.InTransitInterval
	}
	if c.ArrivalPollInterval <= 0 {
		c.ArrivalPollInterval = d.ArrivalPollInterval
	}
	if c.PrepStampInterval <= 0 {
		c.PrepStampInterval = d.PrepStampInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.DefaultETAMinutes <= 0 {
		c.DefaultETAMinutes = d.DefaultETAMinutes
	}
	return c
}

// errNoChange aborts a Store.Update without writing.
var errNoChange = errors.New("no change")

// Engine is the only writer of the Store. Time-driven rules run on their own
// tickers; event-driven transitions come in through the exported methods.
type Engine struct {
	store      *Store
	clock      clock.Clock
	detector   *transit.Detector
	cfg        Config
	logger     zerolog.Logger
	history    *History
	prepActive atomic.Bool

	mu         sync.RWMutex
	publishers []Publisher
}

// NewEngine wires an engine over store.
func NewEngine(store *Store, clk clock.Clock, cfg Config, logger zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	cfg = cfg.withDefaults()
	return &Engine{
		store:    store,
		clock:    clk,
		detector: transit.NewDetector(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "patientflow.engine").Logger(),
		history:  NewHistory(),
	}
}

// Subscribe adds a publisher that sees every applied transition.
func (e *Engine) Subscribe(p Publisher) {
	e.mu.Lock()
	e.publishers = append(e.publishers, p)
	e.mu.Unlock()
}

// Clock returns the engine's time source.
func (e *Engine) Clock() clock.Clock { return e.clock }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Patient returns a copy of one patient.
func (e *Engine) Patient(id uuid.UUID) (Patient, error) { return e.store.Get(id) }

// Patients returns copies of all patients in insertion order.
func (e *Engine) Patients() []Patient { return e.store.All() }

// History returns the applied transitions for id, oldest first.
func (e *Engine) History(id uuid.UUID) []TransitionEvent { return e.history.For(id) }

// Run starts the recurring timers and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	e.every(ctx, g, e.cfg.PrepReadyInterval, e.promotionPass)
	e.every(ctx, g, e.cfg.InTransitInterval, e.transitPass)
	e.every(ctx, g, e.cfg.ArrivalPollInterval, e.arrivalPass)
	e.every(ctx, g, e.cfg.PrepStampInterval, e.prepStampPass)
	e.logger.Info().
		Dur("prep_ready_interval", e.cfg.PrepReadyInterval).
		Dur("in_transit_interval", e.cfg.InTransitInterval).
		Dur("arrival_poll_interval", e.cfg.ArrivalPollInterval).
		Dur("prep_stamp_interval", e.cfg.PrepStampInterval).
		Msg("engine timers started")
	return g.Wait()
}

func (e *Engine) every(ctx context.Context, g *errgroup.Group, d time.Duration, pass func(context.Context)) {
	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				pass(ctx)
			}
		}
	})
}

// Tick runs every time-driven pass once, in pipeline order. Used by tests
// and the simulator in place of Run.
func (e *Engine) Tick(ctx context.Context) {
	e.arrivalPass(ctx)
	e.prepStampPass(ctx)
	e.transitPass(ctx)
	e.promotionPass(ctx)
}

func (e *Engine) promotionPass(ctx context.Context) {
	e.apply(ctx, rule{name: RulePlanReady, fn: promotePrepReady})
}

func (e *Engine) transitPass(ctx context.Context) {
	e.apply(ctx, rule{name: RuleDispatchStamped, fn: promoteInTransit})
}

// arrivalPass consumes last pass's pulse before raising new ones so the
// pulse stays visible for one full period.
func (e *Engine) arrivalPass(ctx context.Context) {
	e.apply(ctx, rule{name: RuleTheatreHandover, fn: consumeArrivalPulse})
	e.apply(ctx, rule{name: RuleArrivalSettled, fn: settleArrival(e.cfg.SettleDelay)})
	e.pollArrivals(ctx)
}

func (e *Engine) prepStampPass(ctx context.Context) {
	if !e.prepActive.Load() {
		return
	}
	e.apply(ctx, rule{name: RuleHospitalLegStart, fn: stampHospitalLeg})
}

func (e *Engine) apply(ctx context.Context, r rule) {
	now := e.clock.Now()
	changes, err := e.store.MapAll(func(p Patient) (Patient, bool) {
		return r.fn(p, now)
	})
	if err != nil {
		e.logger.Error().Err(err).Str("rule", string(r.name)).Msg("rule rejected by store")
	}
	for _, c := range changes {
		e.emit(ctx, r.name, now, c)
	}
}

func (e *Engine) pollArrivals(ctx context.Context) {
	now := e.clock.Now()
	fired := make(map[uuid.UUID][]string)
	changes, err := e.store.MapAll(func(p Patient) (Patient, bool) {
		return e.detectArrival(p, now, fired)
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("arrival rejected by store")
	}
	e.rearmUncommitted(fired, changes)
	for _, c := range changes {
		e.emitArrival(ctx, now, c)
	}
}

// detectArrival applies the arrival for any leg the detector reports as
// complete, recording the fired leg keys under the patient's id.
func (e *Engine) detectArrival(p Patient, now time.Time, fired map[uuid.UUID][]string) (Patient, bool) {
	changed := false
	if leg, ok := toPatientLeg(p); ok {
		key := legKey(p.QueueID, leg.Direction)
		if _, arrived := e.detector.Observe(key, leg, now); arrived {
			fired[p.QueueID] = append(fired[p.QueueID], key)
			var c bool
			p, c = arriveAtScene(p)
			changed = changed || c
		}
	}
	if leg, ok := toHospitalLeg(p); ok {
		key := legKey(p.QueueID, leg.Direction)
		if _, arrived := e.detector.Observe(key, leg, now); arrived {
			fired[p.QueueID] = append(fired[p.QueueID], key)
			var c bool
			p, c = arriveAtHospital(p, now)
			changed = changed || c
		}
	}
	return p, changed
}

// rearmUncommitted forgets fired legs whose patient was not written, so the
// next poll signals them again.
func (e *Engine) rearmUncommitted(fired map[uuid.UUID][]string, changes []Change) {
	for _, c := range changes {
		delete(fired, c.After.QueueID)
	}
	for _, keys := range fired {
		for _, k := range keys {
			e.detector.Forget(k)
		}
	}
}

// HandleArrival applies an arrival signal for one leg directly. It reports
// whether the store changed; repeated or inapplicable signals are no-ops.
func (e *Engine) HandleArrival(ctx context.Context, id uuid.UUID, dir transit.Direction) (bool, error) {
	now := e.clock.Now()
	change, err := e.store.Update(id, func(p *Patient) error {
		var next Patient
		var ok bool
		switch dir {
		case transit.ToPatient:
			next, ok = arriveAtScene(*p)
		case transit.ToHospital:
			if !statusIn(p.Status, hospitalLegStatuses) {
				return errNoChange
			}
			next, ok = arriveAtHospital(*p, now)
		default:
			return fmt.Errorf("unknown leg direction %q", dir)
		}
		if !ok {
			return errNoChange
		}
		*p = next
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.emitArrival(ctx, now, change)
	return true, nil
}

// Leg returns the transit leg for p in direction dir, if it has started.
func Leg(p Patient, dir transit.Direction) (transit.Leg, bool) {
	switch dir {
	case transit.ToPatient:
		if p.DispatchTime == nil {
			return transit.Leg{}, false
		}
		return transit.NewLeg(*p.DispatchTime, p.ETAMinutes, dir), true
	case transit.ToHospital:
		if p.PrepTabDispatchTime == nil {
			return transit.Leg{}, false
		}
		return transit.NewLeg(*p.PrepTabDispatchTime, p.ETAMinutes, dir), true
	}
	return transit.Leg{}, false
}

func toPatientLeg(p Patient) (transit.Leg, bool) {
	if p.AmbulanceAtScene || !statusIn(p.Status, responderStatuses) {
		return transit.Leg{}, false
	}
	return Leg(p, transit.ToPatient)
}

func toHospitalLeg(p Patient) (transit.Leg, bool) {
	if p.ArrivedAt != nil || !statusIn(p.Status, hospitalLegStatuses) {
		return transit.Leg{}, false
	}
	return Leg(p, transit.ToHospital)
}

func legKey(id uuid.UUID, dir transit.Direction) string {
	return id.String() + ":" + string(dir)
}

// legInProgress reports whether a started leg has not completed yet. Both
// legs take their duration from ETAMinutes.
func legInProgress(p Patient) bool {
	return (p.DispatchTime != nil && !p.AmbulanceAtScene) ||
		(p.PrepTabDispatchTime != nil && p.ArrivedAt == nil)
}

// SetPrepContext turns hospital-leg stamping on or off.
func (e *Engine) SetPrepContext(ctx context.Context, active bool) {
	if e.prepActive.Swap(active) == active {
		return
	}
	e.logger.Info().Bool("active", active).Msg("prep context changed")
	if active {
		e.prepStampPass(ctx)
	}
}

// PrepContextActive reports whether hospital-leg stamping is on.
func (e *Engine) PrepContextActive() bool {
	return e.prepActive.Load()
}

// Register inserts a new patient at one of the two pipeline entry points.
func (e *Engine) Register(ctx context.Context, p Patient) (Patient, error) {
	var r Rule
	switch p.Status {
	case StatusWaitingRemote:
		r = RuleRegistered
	case StatusAmbulanceDispatched:
		r = RuleDispatched
	default:
		return Patient{}, fmt.Errorf("cannot register patient as %q: %w", p.Status, ErrInvalidStatus)
	}
	if p.QueueID == uuid.Nil {
		p.QueueID = uuid.New()
	}
	if err := e.store.Insert(p); err != nil {
		return Patient{}, err
	}
	stored, err := e.store.Get(p.QueueID)
	if err != nil {
		return Patient{}, err
	}
	e.emit(ctx, r, stored.CreatedAt, Change{After: stored})
	return stored, nil
}

// StampDispatch starts the to-patient leg. A leg that already has a start is
// never restarted.
func (e *Engine) StampDispatch(ctx context.Context, id uuid.UUID) (Patient, error) {
	now := e.clock.Now()
	return e.mutate(ctx, id, RuleDispatchStamped, func(p *Patient) error {
		if p.DispatchTime != nil {
			return ErrLegAlreadyStarted
		}
		if !statusIn(p.Status, responderStatuses) {
			return ErrNotEligible
		}
		t := now
		p.DispatchTime = &t
		if p.ETAMinutes <= 0 {
			p.ETAMinutes = e.cfg.DefaultETAMinutes
		}
		return nil
	})
}

// MarkLobbyArrival moves a remote patient into the waiting lobby.
func (e *Engine) MarkLobbyArrival(ctx context.Context, id uuid.UUID) (Patient, error) {
	return e.mutate(ctx, id, RuleLobbyArrival, func(p *Patient) error {
		if p.Status == StatusInWaitingLobby {
			return errNoChange
		}
		if !CanTransition(p.Status, StatusInWaitingLobby) {
			return ErrNotEligible
		}
		p.Status = StatusInWaitingLobby
		return nil
	})
}

// ResponderReport is one field report as composed by the responder.
type ResponderReport struct {
	Text               string
	Video              string
	SymptomDescription string
	ETAMinutes         float64
}

// ApplyResponderUpdate appends a field report. Non-critical patients go
// straight to theatre; critical ones keep their status until a resource plan
// is attached. The report's ETA is ignored while a leg is under way.
func (e *Engine) ApplyResponderUpdate(ctx context.Context, id uuid.UUID, r ResponderReport) (Patient, error) {
	now := e.clock.Now()
	return e.mutate(ctx, id, RuleResponderUpdate, func(p *Patient) error {
		if !statusIn(p.Status, responderStatuses) {
			return ErrNotEligible
		}
		p.AmbulanceUpdates = append(p.AmbulanceUpdates, AmbulanceUpdate{
			Timestamp: now,
			Text:      r.Text,
			Video:     r.Video,
		})
		if r.SymptomDescription != "" {
			p.SymptomDescription = r.SymptomDescription
		}
		if !legInProgress(*p) {
			p.ETAMinutes = r.ETAMinutes
			if p.ETAMinutes <= 0 {
				p.ETAMinutes = e.cfg.DefaultETAMinutes
			}
		}
		if !IsCritical(p.Severity) && CanTransition(p.Status, StatusMovingToTheatre) {
			p.Status = StatusMovingToTheatre
		}
		return nil
	})
}

// AttachPlan stores a resource plan for a critical patient. With
// awaitApproval the patient moves to Awaiting Plan Approval; without it the
// plan only unblocks the Prep Ready promotion.
func (e *Engine) AttachPlan(ctx context.Context, id uuid.UUID, plan *ResourcePlan, awaitApproval bool) (Patient, error) {
	if plan == nil {
		return Patient{}, ErrPlanUnavailable
	}
	r := RulePlanAttached
	if awaitApproval {
		r = RulePlanRequested
	}
	return e.mutate(ctx, id, r, func(p *Patient) error {
		if !PlanAttachable(*p, awaitApproval) {
			return ErrNotEligible
		}
		if awaitApproval {
			p.Status = StatusAwaitingPlanApproval
		}
		p.ResourcePlan = plan.clone()
		return nil
	})
}

// PlanAttachable reports whether AttachPlan would accept a plan for p.
func PlanAttachable(p Patient, awaitApproval bool) bool {
	if !IsCritical(p.Severity) {
		return false
	}
	if awaitApproval {
		return p.Status == StatusAwaitingPlanApproval || CanTransition(p.Status, StatusAwaitingPlanApproval)
	}
	return p.Status == StatusAmbulanceDispatched && p.ResourcePlan == nil
}

// ApprovePlan is the clinician sign-off. An edited plan, if given, replaces
// the stored one in the same write as the transition.
func (e *Engine) ApprovePlan(ctx context.Context, id uuid.UUID, edited *ResourcePlan) (Patient, error) {
	return e.mutate(ctx, id, RulePlanApproved, func(p *Patient) error {
		if p.Status != StatusAwaitingPlanApproval {
			return ErrNotEligible
		}
		if edited != nil {
			p.ResourcePlan = edited.clone()
		}
		if p.ResourcePlan == nil {
			return ErrPlanUnavailable
		}
		p.Status = StatusPrepReady
		return nil
	})
}

// mutate runs fn as a single-record transition and publishes the result.
// fn returning errNoChange yields the current record without an event.
func (e *Engine) mutate(ctx context.Context, id uuid.UUID, r Rule, fn func(p *Patient) error) (Patient, error) {
	change, err := e.store.Update(id, fn)
	if errors.Is(err, errNoChange) {
		return e.store.Get(id)
	}
	if err != nil {
		return Patient{}, err
	}
	e.emit(ctx, r, change.After.UpdatedAt, change)
	return change.After, nil
}

func (e *Engine) emitArrival(ctx context.Context, at time.Time, c Change) {
	if !c.Before.AmbulanceAtScene && c.After.AmbulanceAtScene {
		scene := c.Before.Clone()
		scene.AmbulanceAtScene = true
		e.emit(ctx, RuleAtScene, at, Change{Before: c.Before, After: scene})
	}
	if c.Before.Status != c.After.Status {
		e.emit(ctx, RuleHospitalArrival, at, c)
	}
}

func (e *Engine) emit(ctx context.Context, r Rule, at time.Time, c Change) {
	ev := TransitionEvent{
		QueueID:     c.After.QueueID,
		PatientName: c.After.PatientName,
		From:        c.Before.Status,
		To:          c.After.Status,
		Rule:        r,
		At:          at,
	}
	e.logger.Info().
		Str("queue_id", ev.QueueID.String()).
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Str("rule", string(ev.Rule)).
		Msg("patient transition")

	n := Notification{Event: ev, Patient: c.After}
	_ = e.history.Publish(ctx, n)

	e.mu.RLock()
	pubs := append([]Publisher(nil), e.publishers...)
	e.mu.RUnlock()
	for _, p := range pubs {
		if err := p.Publish(ctx, n); err != nil {
			e.logger.Error().Err(err).Str("queue_id", ev.QueueID.String()).Msg("publish transition")
		}
	}
}
