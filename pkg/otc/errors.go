package otc

import (
	"errors"
	"fmt"
)

// RejectReason is the machine-readable classification of a pool rejection.
type RejectReason string

const (
	ReasonNoPool                RejectReason = "no_pool"
	ReasonInactive              RejectReason = "pool_inactive"
	ReasonBelowMinimum          RejectReason = "below_minimum"
	ReasonAboveMaximum          RejectReason = "above_maximum"
	ReasonInsufficientLiquidity RejectReason = "insufficient_liquidity"
	// ReasonLiquidityConsumed is raised only at execute time, when a
	// concurrent trade consumed the liquidity between quote and execute.
	ReasonLiquidityConsumed RejectReason = "liquidity_consumed"
)

// RejectionError is a business-rule rejection, not a fault. Callers can
// switch on Reason to distinguish "never had capacity" from "capacity
// consumed by a concurrent trade".
type RejectionError struct {
	Pair   string
	Reason RejectReason
	msg    string
}

func (e *RejectionError) Error() string { return e.msg }

func rejectf(pair string, reason RejectReason, format string, args ...any) *RejectionError {
	return &RejectionError{Pair: pair, Reason: reason, msg: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
