package patientflow

import (
	"fmt"
	"sort"
)

// Person is a directory entry looked up by NHS number.
type Person struct {
	NHSNumber      string   `json:"nhs_number"`
	Name           string   `json:"name"`
	DateOfBirth    string   `json:"dob"`
	MedicalHistory []string `json:"medical_history"`
}

// Hospital is a receiving hospital and its current occupancy.
type Hospital struct {
	ID              string `json:"hospital_id"`
	Name            string `json:"name"`
	CurrentCapacity int    `json:"current_capacity"`
	MaxCapacity     int    `json:"max_capacity"`
}

// Capacity returns the planner view of h.
func (h Hospital) Capacity() HospitalCapacity {
	return HospitalCapacity{Current: h.CurrentCapacity, Max: h.MaxCapacity}
}

// Directory resolves people and hospitals.
type Directory interface {
	Person(nhsNumber string) (Person, error)
	Hospital(id string) (Hospital, error)
	Hospitals() []Hospital
}

type staticDirectory struct {
	people    map[string]Person
	hospitals map[string]Hospital
}

// NewStaticDirectory builds a read-only directory from fixed entries.
func NewStaticDirectory(people []Person, hospitals []Hospital) Directory {
	d := &staticDirectory{
		people:    make(map[string]Person, len(people)),
		hospitals: make(map[string]Hospital, len(hospitals)),
	}
	for _, p := range people {
		d.people[p.NHSNumber] = p
	}
	for _, h := range hospitals {
		d.hospitals[h.ID] = h
	}
	return d
}

func (d *staticDirectory) Person(nhsNumber string) (Person, error) {
	p, ok := d.people[nhsNumber]
	if !ok {
		return Person{}, fmt.Errorf("%s: %w", nhsNumber, ErrUnknownNHSNumber)
	}
	return p, nil
}

func (d *staticDirectory) Hospital(id string) (Hospital, error) {
	h, ok := d.hospitals[id]
	if !ok {
		return Hospital{}, fmt.Errorf("%s: %w", id, ErrUnknownHospital)
	}
	return h, nil
}

func (d *staticDirectory) Hospitals() []Hospital {
	out := make([]Hospital, 0, len(d.hospitals))
	for _, h := range d.hospitals {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultHospitalID is the hospital used when none is configured.
const DefaultHospitalID = "H001"

var (
	historyAsthma  = []string{"Asthma", "Penicillin Allergy"}
	historyCardiac = []string{"Hypertension", "Type 2 Diabetes", "Previous MI (2018)"}
)

// DemoDirectory returns the directory the demo deployment ships with.
func DemoDirectory() Directory {
	return NewStaticDirectory(
		[]Person{
			{NHSNumber: "9912003071", Name: "Jane Doe", DateOfBirth: "2002-03-15", MedicalHistory: historyAsthma},
			{NHSNumber: "9912003072", Name: "John Smith", DateOfBirth: "1955-11-20", MedicalHistory: historyCardiac},
			{NHSNumber: "9912003073", Name: "Ban Joe", DateOfBirth: "2002-03-15", MedicalHistory: historyAsthma},
			{NHSNumber: "9912003074", Name: "Gui Tar", DateOfBirth: "1955-11-20", MedicalHistory: historyCardiac},
			{NHSNumber: "9912003075", Name: "Harp Haze", DateOfBirth: "2002-03-15", MedicalHistory: historyAsthma},
			{NHSNumber: "9912003076", Name: "Clair aNet", DateOfBirth: "1955-11-20", MedicalHistory: historyCardiac},
			{NHSNumber: "9912003077", Name: "Pian Over", DateOfBirth: "2002-03-15", MedicalHistory: historyAsthma},
			{NHSNumber: "9912003078", Name: "Kay Bord", DateOfBirth: "1955-11-20", MedicalHistory: historyCardiac},
		},
		[]Hospital{
			{ID: "H001", Name: "St. Elsewhere's Hospital", CurrentCapacity: 47, MaxCapacity: 60},
			{ID: "H002", Name: "Royal General Hospital", CurrentCapacity: 52, MaxCapacity: 70},
		},
	)
}

// EstimateWait returns the expected lobby wait in minutes for a remote
// patient, never less than 15. Each patient already queued adds 15.
func EstimateWait(severity, queueLength int) int {
	const base = 300
	wait := base - (10-severity)*20 + queueLength*15
	if wait < 15 {
		return 15
	}
	return wait
}
