package reconcile

import "fmt"

// SkipNote records one line item that could not be resolved. Skips are
// attached to the event outcome but do not fail the event on their own.
type SkipNote struct {
	ProductRef string
	Reason     string
}

func (s SkipNote) String() string {
	return fmt.Sprintf("skipped %s: %s", s.ProductRef, s.Reason)
}

// Result is the explicit outcome of one reconciliation run. Retryable is
// only meaningful when Processed is false: it tells the ingestion endpoint
// whether a resend of the same event could succeed.
type Result struct {
	Processed bool
	Retryable bool
	Err       error

	Granted      []uint
	AlreadyOwned []uint
	Revoked      []uint
	Skipped      []SkipNote
}

// ErrorMessage renders the outcome detail stored on the event log row. For a
// processed event with skips, the skips are still recorded so an operator
// can see which line items never resolved.
func (r Result) ErrorMessage() string {
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
	}
	for _, skip := range r.Skipped {
		if msg != "" {
			msg += "; "
		}
		msg += skip.String()
	}
	return msg
}

func processed(granted, alreadyOwned []uint, skipped []SkipNote) Result {
	return Result{Processed: true, Granted: granted, AlreadyOwned: alreadyOwned, Skipped: skipped}
}

func failed(err error, retryable bool) Result {
	return Result{Processed: false, Retryable: retryable, Err: err}
}
