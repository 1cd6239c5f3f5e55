package vrp

import (
	"errors"
	"fmt"
)

// ConstraintError means the inputs are internally unsatisfiable before any
// search starts, e.g. a stop demand no vehicle can carry.
type ConstraintError struct {
	Field  string // which input group: stops, vehicles, objectives
	ID     string // offending stop/vehicle id, when known
	Reason string
}

func (e *ConstraintError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("constraint violation on %s %s: %s", e.Field, e.ID, e.Reason)
	}
	return fmt.Sprintf("constraint violation on %s: %s", e.Field, e.Reason)
}

// ErrTooManyAlternatives rejects alternative-generation requests exceeding
// the variant cap rather than silently truncating them.
var ErrTooManyAlternatives = errors.New("too many objective weight variants")

// Unassigned-stop reasons recorded in Solution.Unassigned.
const (
	ReasonCapacity    = "capacity_exceeded"
	ReasonTimeWindow  = "time_window"
	ReasonNoVehicle   = "no_capable_vehicle"
	ReasonVehicleGone = "vehicle_unavailable"
	ReasonNoInsertion = "no_feasible_insertion"
)
