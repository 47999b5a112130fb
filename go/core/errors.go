package core

import "errors"

// Concrete error values shared across the module.
var (
	// ErrMaximization is returned by cmd/dcopsim when a scenario asks
	// for a maximization objective; BnB-ADOPT as implemented here only
	// supports minimization.
	ErrMaximization = errors.New("dcop: maximization problems are unsupported")

	// ErrNegativeCost is returned when a cost table entry is negative,
	// which would break the monotonicity the branch-and-bound pruning
	// relies on.
	ErrNegativeCost = errors.New("dcop: negative cost detected")

	// ErrUnknownVariable is returned when a message names a Receiver
	// with no owning Variable anywhere in the system.
	ErrUnknownVariable = errors.New("dcop: message for unknown variable")
)
