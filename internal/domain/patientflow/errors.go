package patientflow

import "errors"

var (
	ErrNotFound          = errors.New("patient not found")
	ErrDuplicate         = errors.New("patient already exists")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidSeverity   = errors.New("severity must be between 1 and 10")
	ErrImmutableField    = errors.New("field is immutable")
	ErrAppendOnly        = errors.New("ambulance updates are append-only")
	ErrLegAlreadyStarted = errors.New("leg already started")
	ErrLegNotStarted     = errors.New("leg has not started")
	ErrNotEligible       = errors.New("patient not eligible for this action")
	ErrPlanUnavailable   = errors.New("could not generate resource plan")
	ErrUpstream          = errors.New("upstream service unavailable")
	ErrUnknownNHSNumber  = errors.New("NHS number not found")
	ErrUnknownHospital   = errors.New("hospital not found")
)
