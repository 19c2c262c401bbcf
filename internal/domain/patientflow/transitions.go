package patientflow

// edges is the directed status graph. Anything not listed is rejected as a
// no-op by the engine, which is what keeps a patient from skipping stages.
var edges = map[Status][]Status{
	StatusWaitingRemote: {StatusInWaitingLobby},
	StatusAmbulanceDispatched: {
		StatusPrepReady,
		StatusAwaitingPlanApproval,
		StatusMovingToTheatre,
	},
	StatusPrepReady: {
		StatusInTransit,
		StatusAwaitingPlanApproval,
		StatusMovingToTheatre,
		StatusArrived,
	},
	StatusInTransit: {
		StatusAwaitingPlanApproval,
		StatusMovingToTheatre,
		StatusArrived,
	},
	StatusAwaitingPlanApproval: {StatusPrepReady},
	StatusMovingToTheatre:      {StatusArrived},
	StatusArrived:              {StatusInTheatre},
}

// CanTransition reports whether from -> to is an edge of the pipeline.
func CanTransition(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Successors returns the statuses reachable from s in one step.
func Successors(s Status) []Status {
	return append([]Status(nil), edges[s]...)
}

// statuses in which the first responder is attached to the patient
var responderStatuses = []Status{
	StatusAmbulanceDispatched,
	StatusInTransit,
	StatusPrepReady,
	StatusArrived,
	StatusMovingToTheatre,
	StatusAwaitingPlanApproval,
}

// statuses in which the ambulance is heading for (or about to leave for) the
// hospital and the inbound leg may be started or completed
var hospitalLegStatuses = []Status{
	StatusPrepReady,
	StatusInTransit,
	StatusMovingToTheatre,
}

// statuses shown on the preparation board for critical patients
var prepBoardStatuses = []Status{
	StatusAmbulanceDispatched,
	StatusInTransit,
	StatusPrepReady,
	StatusMovingToTheatre,
	StatusArrived,
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
