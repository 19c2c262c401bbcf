// Package transit models simulated ambulance legs: how far along a leg is,
// how much time and distance remain, where the vehicle sits on the map, and
// when the leg completes.
package transit

import (
	"fmt"
	"math"
	"time"
)

// Direction of travel along the route.
type Direction string

const (
	// ToPatient is the outbound leg from the hospital to the patient.
	ToPatient Direction = "to-patient"
	// ToHospital is the inbound leg from the patient to the hospital.
	ToHospital Direction = "to-hospital"
)

// DefaultRouteKM is the nominal length of every simulated route.
const DefaultRouteKM = 4.5

// ParseDirection maps a query value onto a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case ToPatient, ToHospital:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown leg %q", s)
}

// Leg is one timed transit segment.
type Leg struct {
	Start     time.Time
	Duration  time.Duration
	Direction Direction
}

// NewLeg builds a leg from an ETA in (possibly fractional) minutes.
func NewLeg(start time.Time, etaMinutes float64, dir Direction) Leg {
	return Leg{
		Start:     start,
		Duration:  time.Duration(etaMinutes * float64(time.Minute)),
		Direction: dir,
	}
}

// Progress returns the completed fraction of the leg at now, clamped to
// [0, 1]. A leg with no duration is complete as soon as it starts.
func (l Leg) Progress(now time.Time) float64 {
	if l.Duration <= 0 {
		if now.Before(l.Start) {
			return 0
		}
		return 1
	}
	elapsed := now.Sub(l.Start)
	if elapsed <= 0 {
		return 0
	}
	return clamp(float64(elapsed)/float64(l.Duration), 0, 1)
}

// Complete reports whether the leg has reached its destination.
func (l Leg) Complete(now time.Time) bool {
	return l.Progress(now) >= 1
}

// RemainingSeconds derives the whole seconds left from the planned duration
// and a progress fraction.
func RemainingSeconds(total time.Duration, progress float64) int {
	rem := total.Seconds() * (1 - clamp(progress, 0, 1))
	if rem < 0 {
		return 0
	}
	return int(math.Floor(rem))
}

// RemainingDistance derives the kilometres left on a route of totalKM.
func RemainingDistance(totalKM, progress float64) float64 {
	return totalKM * (1 - clamp(progress, 0, 1))
}

// FormatSeconds renders a countdown as M:SS, or H:MM:SS past the hour.
func FormatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Snapshot is the display projection of a leg at one instant.
type Snapshot struct {
	Direction        Direction `json:"direction"`
	ProgressPercent  float64   `json:"progress_percent"`
	RemainingSeconds int       `json:"remaining_seconds"`
	RemainingDisplay string    `json:"remaining_display"`
	RemainingKM      float64   `json:"remaining_km"`
	Position         Point     `json:"position"`
	PositionPercent  Point     `json:"position_percent"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
}

// Snap computes the display projection of l at now on a route of routeKM.
func (l Leg) Snap(now time.Time, routeKM float64) Snapshot {
	p := l.Progress(now)
	rem := RemainingSeconds(l.Duration, p)
	pos := PointOnPath(p, l.Direction)
	return Snapshot{
		Direction:        l.Direction,
		ProgressPercent:  math.Round(p*10000) / 100,
		RemainingSeconds: rem,
		RemainingDisplay: FormatSeconds(rem),
		RemainingKM:      math.Round(RemainingDistance(routeKM, p)*100) / 100,
		Position:         pos,
		PositionPercent:  pos.Percent(),
		EstimatedArrival: l.Start.Add(l.Duration),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
