package patientflow

import "time"

// A rule inspects one patient at now and returns the rewritten record plus
// whether anything changed. Rules never touch the store directly; the engine
// runs them inside a Store.MapAll pass so the check and the write are atomic.
type rule struct {
	name Rule
	fn   func(p Patient, now time.Time) (Patient, bool)
}

// advance moves p to `to` if the edge exists.
func advance(p Patient, to Status) (Patient, bool) {
	if !CanTransition(p.Status, to) {
		return p, false
	}
	p.Status = to
	return p, true
}

// promotePrepReady: Ambulance Dispatched -> Prep Ready once a plan is attached.
func promotePrepReady(p Patient, _ time.Time) (Patient, bool) {
	if p.Status != StatusAmbulanceDispatched || p.ResourcePlan == nil {
		return p, false
	}
	return advance(p, StatusPrepReady)
}

// promoteInTransit: Prep Ready -> In Transit once the ambulance leg has a
// start stamp.
func promoteInTransit(p Patient, _ time.Time) (Patient, bool) {
	if p.Status != StatusPrepReady || p.DispatchTime == nil {
		return p, false
	}
	return advance(p, StatusInTransit)
}

// stampHospitalLeg starts the to-hospital leg for patients the preparation
// board can see. Runs only while the prep context is active.
func stampHospitalLeg(p Patient, now time.Time) (Patient, bool) {
	if p.PrepTabDispatchTime != nil || p.HasArrivedAtHospital || p.ArrivedAt != nil {
		return p, false
	}
	if !statusIn(p.Status, hospitalLegStatuses) {
		return p, false
	}
	t := now
	p.PrepTabDispatchTime = &t
	return p, true
}

// settleArrival raises the pulse once an Arrived patient has been at the
// hospital for delay.
func settleArrival(delay time.Duration) func(Patient, time.Time) (Patient, bool) {
	return func(p Patient, now time.Time) (Patient, bool) {
		if p.Status != StatusArrived || p.ArrivedAt == nil || p.HasArrivedAtHospital {
			return p, false
		}
		if now.Before(p.ArrivedAt.Add(delay)) {
			return p, false
		}
		p.HasArrivedAtHospital = true
		return p, true
	}
}

// consumeArrivalPulse hands an arrived patient over to theatre and lowers the
// pulse in the same write.
func consumeArrivalPulse(p Patient, _ time.Time) (Patient, bool) {
	if !p.HasArrivedAtHospital {
		return p, false
	}
	next, ok := advance(p, StatusInTheatre)
	if !ok {
		return p, false
	}
	next.HasArrivedAtHospital = false
	return next, true
}

// arriveAtScene marks the to-patient leg complete. Status is untouched.
func arriveAtScene(p Patient) (Patient, bool) {
	if p.AmbulanceAtScene || p.DispatchTime == nil {
		return p, false
	}
	p.AmbulanceAtScene = true
	return p, true
}

// arriveAtHospital completes the to-hospital leg.
func arriveAtHospital(p Patient, now time.Time) (Patient, bool) {
	if p.HasArrivedAtHospital || p.ArrivedAt != nil {
		return p, false
	}
	next, ok := advance(p, StatusArrived)
	if !ok {
		return p, false
	}
	t := now
	next.ArrivedAt = &t
	next.ETAMinutes = 0
	return next, true
}
