// Package bridgeerr names the semantic error taxonomy of the ingestion
// pipeline (spec section 7) as sentinel errors, so callers decide
// retry/halt/surface behavior with errors.Is/errors.As instead of
// string matching.
package bridgeerr

import "errors"

// ErrRefreshExpired is terminal for the trading pipeline: the broker
// refresh token is past its horizon and an operator must re-authorize.
var ErrRefreshExpired = errors.New("broker refresh token expired, manual re-auth required")

// ErrDataShapeViolation marks an event that is structurally valid but
// whose token-pair configuration or amounts don't match the extractor's
// USDC/equity invariant. The event must not be marked processed.
var ErrDataShapeViolation = errors.New("event data shape violation")

// ErrAllocationInvariant marks a trade-execution allocation that could
// not fully account for an execution's shares. Indicates a bug; the
// transaction creating the execution must be aborted.
var ErrAllocationInvariant = errors.New("trade-execution allocation invariant violated")

// ErrInvalidRowState marks a persisted row whose status-conditional
// columns don't match what its status requires (see BrokerExecution's
// state machine in spec section 3).
var ErrInvalidRowState = errors.New("row violates status-conditional field invariant")

// ErrBrokerTerminal marks a broker response that rejected, canceled, or
// expired an order. The execution transitions to Failed; it is not retried.
var ErrBrokerTerminal = errors.New("broker order terminally failed")
