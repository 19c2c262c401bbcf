package transit

// The route is drawn in an 800x400 viewbox as three chained quadratic Bezier
// segments running from the patient (bottom left) to the hospital (top right).
const (
	viewWidth  = 800
	viewHeight = 400
)

// Point is a position in viewbox units (or percentages, see Percent).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Percent converts a viewbox point to percentages of the viewbox.
func (p Point) Percent() Point {
	return Point{X: p.X / viewWidth * 100, Y: p.Y / viewHeight * 100}
}

type quadSegment struct {
	from, ctrl, to Point
	// upper bound of the route parameter covered by this segment
	until float64
	span  float64
}

var patientToHospital = []quadSegment{
	{from: Point{50, 300}, ctrl: Point{200, 250}, to: Point{300, 220}, until: 0.33, span: 0.33},
	{from: Point{300, 220}, ctrl: Point{400, 190}, to: Point{500, 160}, until: 0.66, span: 0.33},
	{from: Point{500, 160}, ctrl: Point{600, 130}, to: Point{700, 100}, until: 1, span: 0.34},
}

var hospitalToPatient = reverseRoute(patientToHospital)

func reverseRoute(route []quadSegment) []quadSegment {
	out := make([]quadSegment, len(route))
	n := len(route)
	for i, seg := range route {
		// spans stay in the same positional order so breakpoints are identical
		out[i] = quadSegment{
			from:  route[n-1-i].to,
			ctrl:  route[n-1-i].ctrl,
			to:    route[n-1-i].from,
			until: seg.until,
			span:  seg.span,
		}
	}
	return out
}

// PointOnPath evaluates the route at progress t in [0, 1]. ToPatient runs
// the route backwards, starting at the hospital.
func PointOnPath(t float64, dir Direction) Point {
	t = clamp(t, 0, 1)
	route := patientToHospital
	if dir == ToPatient {
		route = hospitalToPatient
	}

	start := 0.0
	for i, seg := range route {
		if t <= seg.until || i == len(route)-1 {
			return seg.at((t - start) / seg.span)
		}
		start = seg.until
	}
	return route[len(route)-1].to
}

func (s quadSegment) at(u float64) Point {
	a := (1 - u) * (1 - u)
	b := 2 * (1 - u) * u
	c := u * u
	return Point{
		X: a*s.from.X + b*s.ctrl.X + c*s.to.X,
		Y: a*s.from.Y + b*s.ctrl.Y + c*s.to.Y,
	}
}
