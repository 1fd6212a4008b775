package math

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// CastTo converts between integer types without any range checking. Use
// it only where the value is already known to fit the target type.
func CastTo[T, F constraints.Integer](from F) T {
	return T(from)
}

// SafeCastTo converts between integer types and fails when the value
// does not fit the target type.
func SafeCastTo[T, F constraints.Integer](from F) (T, error) {
	to := T(from)
	if (from < 0) != (to < 0) || F(to) != from {
		return 0, fmt.Errorf("value(%v) out of bounds for target type", from)
	}
	return to, nil
}

// MustSafeCastTo converts between integer types and panics when the
// value does not fit the target type.
func MustSafeCastTo[T, F constraints.Integer](from F) T {
	to, err := SafeCastTo[T](from)
	if err != nil {
		panic(err)
	}
	return to
}
