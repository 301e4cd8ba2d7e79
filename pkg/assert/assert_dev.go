//go:build !release

// Package assert panics when a simulation invariant is broken. Release builds compile the checks away.
package assert

import "fmt"

// That panics with the formatted message when cond is false.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// NonNegative panics when v is below zero.
func NonNegative(v float64, what string) {
	if v < 0 {
		panic(fmt.Sprintf("%s must be non-negative, got %v", what, v))
	}
}
