package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Event type tags with a defined transition. Payment platforms disagree on
// the exact cancellation vocabulary, so every refund-like tag maps to the
// revoke transition.
const (
	EventOrderPaid       = "order.paid"
	EventOrderRefunded   = "order.refunded"
	EventOrderCanceled   = "order.canceled"
	EventOrderChargeback = "order.chargeback"
)

// FlexID accepts a JSON string or number and normalizes it to a string.
// Platforms are inconsistent about whether order and product ids are quoted.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string {
	return string(f)
}

// Customer is the buyer identity attached to an order event. Email is the
// natural key used to resolve the internal user.
type Customer struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// LineItem is one product reference within an order.
type LineItem struct {
	ProductRef FlexID `json:"product_id" validate:"required"`
}

// OrderEvent is the normalized, provider-agnostic order event handed to the
// engine. Concrete platform adapters are expected to produce this shape.
type OrderEvent struct {
	Type      string     `json:"event" validate:"required"`
	OrderID   FlexID     `json:"order_id" validate:"required"`
	Customer  Customer   `json:"customer" validate:"required"`
	LineItems []LineItem `json:"line_items" validate:"required,min=1,dive"`
}

var validate = validator.New()

func (e *OrderEvent) Validate() error {
	return validate.Struct(e)
}

// ParseOrderEvent decodes and validates a raw webhook body into the
// normalized event shape. A body that fails here is a MalformedPayload:
// there is nothing coherent to log, so the caller must reject it without
// writing an event row.
func ParseOrderEvent(payload []byte) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	event.Type = strings.ToLower(strings.TrimSpace(event.Type))
	event.Customer.Email = strings.TrimSpace(event.Customer.Email)
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &event, nil
}

// IsGrantEvent reports whether the tag triggers the grant transition.
func IsGrantEvent(eventType string) bool {
	return strings.ToLower(strings.TrimSpace(eventType)) == EventOrderPaid
}

// IsRevokeEvent reports whether the tag triggers the revoke transition.
func IsRevokeEvent(eventType string) bool {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case EventOrderRefunded, EventOrderCanceled, EventOrderChargeback:
		return true
	}
	return false
}
