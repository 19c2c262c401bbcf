package patientflow

import (
	"testing"

	"github.com/google/uuid"
)

func viewFixture() []Patient {
	mk := func(name string, sev int, st Status) Patient {
		return Patient{QueueID: uuid.New(), PatientName: name, Severity: sev, Status: st}
	}
	return []Patient{
		mk("a", 3, StatusWaitingRemote),
		mk("b", 9, StatusInTransit),
		mk("c", 9, StatusAwaitingPlanApproval),
		mk("d", 5, StatusMovingToTheatre),
		mk("e", 10, StatusArrived),
		mk("f", 8, StatusInTheatre),
	}
}

func TestOpsQueue_SeverityDescendingStable(t *testing.T) {
	got := OpsQueue(viewFixture())
	want := []string{"e", "b", "c", "f", "d", "a"}
	for i, name := range want {
		if got[i].PatientName != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, got[i].PatientName)
		}
	}
}

func TestComputeStats(t *testing.T) {
	st := ComputeStats(viewFixture())
	if st.Total != 6 || st.Critical != 4 || st.InTransit != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	// (3+9+9+5+10+8)/6 = 7.33
	if st.AverageSeverity != 7.3 {
		t.Errorf("expected average 7.3, got %v", st.AverageSeverity)
	}
	if empty := ComputeStats(nil); empty.AverageSeverity != 0 || empty.Total != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}

func TestPrepBoard(t *testing.T) {
	got := PrepBoard(viewFixture())
	if len(got) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(got))
	}
	if got[0].PatientName != "b" || got[1].PatientName != "e" {
		t.Errorf("unexpected board %s, %s", got[0].PatientName, got[1].PatientName)
	}
}

func TestClinicianQueue(t *testing.T) {
	got := ClinicianQueue(viewFixture())
	if len(got) != 1 || got[0].PatientName != "c" {
		t.Errorf("unexpected clinician queue %+v", got)
	}
}

func TestResponderActive(t *testing.T) {
	got := ResponderActive(viewFixture())
	if got == nil || got.PatientName != "b" {
		t.Fatalf("expected b, got %+v", got)
	}
	if ResponderActive([]Patient{{Status: StatusInTheatre}}) != nil {
		t.Error("expected no active patient")
	}
}

func TestFilterByStatus_NeverNil(t *testing.T) {
	if got := FilterByStatus(nil, StatusArrived); got == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestEstimateWait(t *testing.T) {
	tests := []struct {
		severity, queue, want int
	}{
		{4, 0, 180},
		{7, 2, 270},
		{1, 0, 120},
	}
	for _, tt := range tests {
		if got := EstimateWait(tt.severity, tt.queue); got != tt.want {
			t.Errorf("EstimateWait(%d, %d) = %d, want %d", tt.severity, tt.queue, got, tt.want)
		}
	}
}

func TestDemoDirectory(t *testing.T) {
	dir := DemoDirectory()
	p, err := dir.Person("9912003072")
	if err != nil || p.Name != "John Smith" {
		t.Fatalf("unexpected person %+v (%v)", p, err)
	}
	h, err := dir.Hospital("H002")
	if err != nil || h.Capacity() != (HospitalCapacity{Current: 52, Max: 70}) {
		t.Fatalf("unexpected hospital %+v (%v)", h, err)
	}
	if _, err := dir.Hospital("H999"); err == nil {
		t.Error("expected error for unknown hospital")
	}
	if hs := dir.Hospitals(); len(hs) != 2 || hs[0].ID != "H001" {
		t.Errorf("unexpected hospitals %+v", hs)
	}
}
