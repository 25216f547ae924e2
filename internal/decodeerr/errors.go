// Package decodeerr collects the sentinel error kinds used across the
// decoder (spec.md §7). Callers match with errors.Is; the fatal kinds
// terminate the current decode, non-fatal kinds are logged and recovered
// from by the driver.
package decodeerr

import "errors"

var (
	// ErrEmptyAlphabet: InputModel.Build was given an empty alphabet.
	ErrEmptyAlphabet = errors.New("decodeerr: input alphabet is empty")

	// ErrNonDnaOutput: the machine's output alphabet contains a non-DNA
	// symbol.
	ErrNonDnaOutput = errors.New("decodeerr: machine output alphabet contains a non-DNA symbol")

	// ErrInvalidBase: the observed sequence contains a non-DNA symbol.
	ErrInvalidBase = errors.New("decodeerr: observed sequence contains a non-DNA base")

	// ErrNoDecoding: the best joint path has log-likelihood -Inf.
	ErrNoDecoding = errors.New("decodeerr: no valid Viterbi decoding found")

	// ErrTracebackInconsistent: the traceback's recomputed predecessor
	// score didn't match the stored cell, or no predecessor was found.
	ErrTracebackInconsistent = errors.New("decodeerr: traceback recomputation diverged from stored matrix")

	// ErrUnknownTracebackState: a mut-sub-state outside {S, D, T(k)} was
	// encountered during traceback.
	ErrUnknownTracebackState = errors.New("decodeerr: unknown traceback mutator sub-state")
)
