package errorsx

import (
	"context"
	"errors"
)

// Coded attaches a ReasonCode to the error it wraps. Codes nest: a Coded
// further out in a chain refines the code of any Coded it wraps, so the
// outermost code describes the failure and the inner ones remain visible
// through Reasons.
type Coded struct {
	Code ReasonCode
	Err  error
}

func (e *Coded) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return e.Err.Error()
}

func (e *Coded) Unwrap() error { return e.Err }

// Wrap tags err with reason. When err already carries reason as its
// outermost code it is returned as is; any other code is refined.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if outer, ok := outermost(err); ok && outer.Code == reason {
		return err
	}
	return &Coded{Code: reason, Err: err}
}

// Reason reports the outermost code in err's chain. An uncoded context
// cancellation or deadline maps to ReasonCanceled.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	if outer, ok := outermost(err); ok {
		return outer.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCanceled
	}
	return ReasonUnknown
}

// Reasons lists every code in err's chain, outermost first.
func Reasons(err error) []ReasonCode {
	var codes []ReasonCode
	for err != nil {
		c, ok := outermost(err)
		if !ok {
			break
		}
		codes = append(codes, c.Code)
		err = c.Err
	}
	return codes
}

// HasReason reports whether reason appears anywhere in err's chain.
func HasReason(err error, reason ReasonCode) bool {
	for _, c := range Reasons(err) {
		if c == reason {
			return true
		}
	}
	return Reason(err) == reason
}

func outermost(err error) (*Coded, bool) {
	var c *Coded
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}
