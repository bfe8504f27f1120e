package domain

import "errors"

// ErrUnknownExpression is returned when an Expression is not one of the known variants.
var ErrUnknownExpression = errors.New("unknown expression variant")

// ErrNotTerminal is returned when an outcome is requested for an expression that is
// not a Result, a Failure or Pending.
var ErrNotTerminal = errors.New("expression is not terminal")

// ErrNilExpression is returned when a nil Expression is used where one is required.
var ErrNilExpression = errors.New("nil expression")

// ErrSubscriptionNotFound is returned when a subscription handle is unknown.
var ErrSubscriptionNotFound = errors.New("subscription not found")
