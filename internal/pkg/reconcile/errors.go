package reconcile

import "errors"

var (
	// ErrMalformedPayload marks a body that cannot be decoded into the
	// normalized event shape. Rejected at the boundary, never logged.
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrUnsupportedEventType marks a well-formed event whose tag has no
	// defined transition. Terminal: a resend will fail the same way.
	ErrUnsupportedEventType = errors.New("unsupported event type")

	// ErrUnknownCustomer marks an event whose customer email matches no
	// user. Retryable: the user is expected to finish sign-up out-of-band
	// and the event to be resent or replayed afterwards.
	ErrUnknownCustomer = errors.New("unknown customer")

	// ErrStoreUnavailable wraps backing-store I/O failures. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
)
