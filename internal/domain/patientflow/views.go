package patientflow

import (
	"math"
	"sort"
)

// FilterByStatus returns the patients in status s, order preserved.
func FilterByStatus(patients []Patient, s Status) []Patient {
	out := make([]Patient, 0)
	for _, p := range patients {
		if p.Status == s {
			out = append(out, p)
		}
	}
	return out
}

// OpsQueue is the hospital operations queue: every patient, most severe
// first. Ties keep arrival order.
func OpsQueue(patients []Patient) []Patient {
	out := append([]Patient(nil), patients...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity > out[j].Severity
	})
	return out
}

// Stats summarises the operations queue.
type Stats struct {
	Total           int     `json:"total"`
	Critical        int     `json:"critical"`
	InTransit       int     `json:"in_transit"`
	AverageSeverity float64 `json:"average_severity"`
}

func ComputeStats(patients []Patient) Stats {
	var st Stats
	sum := 0
	for _, p := range patients {
		st.Total++
		sum += p.Severity
		if IsCritical(p.Severity) {
			st.Critical++
		}
		if p.Status == StatusInTransit {
			st.InTransit++
		}
	}
	if st.Total > 0 {
		st.AverageSeverity = math.Round(float64(sum)/float64(st.Total)*10) / 10
	}
	return st
}

// PrepBoard lists critical patients the preparation team is getting ready for.
func PrepBoard(patients []Patient) []Patient {
	out := make([]Patient, 0)
	for _, p := range patients {
		if IsCritical(p.Severity) && statusIn(p.Status, prepBoardStatuses) {
			out = append(out, p)
		}
	}
	return out
}

// ClinicianQueue lists plans waiting for sign-off.
func ClinicianQueue(patients []Patient) []Patient {
	return FilterByStatus(patients, StatusAwaitingPlanApproval)
}

// ResponderActive returns the patient the first responder is attached to,
// or nil.
func ResponderActive(patients []Patient) *Patient {
	for _, p := range patients {
		if statusIn(p.Status, responderStatuses) {
			p := p
			return &p
		}
	}
	return nil
}
