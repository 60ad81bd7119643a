package reconcile

import (
	"errors"
	"testing"
)

func TestParseOrderEvent(t *testing.T) {
	raw := []byte(`{
		"event": "order.paid",
		"order_id": "ORD-1",
		"customer": { "email": "a@x.com", "full_name": "Ada X" },
		"line_items": [ { "product_id": "ext-42" } ]
	}`)

	event, err := ParseOrderEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if event.Type != EventOrderPaid {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.OrderID.String() != "ORD-1" {
		t.Fatalf("unexpected order id %q", event.OrderID)
	}
	if event.Customer.Email != "a@x.com" {
		t.Fatalf("unexpected email %q", event.Customer.Email)
	}
	if len(event.LineItems) != 1 || event.LineItems[0].ProductRef.String() != "ext-42" {
		t.Fatalf("unexpected line items %+v", event.LineItems)
	}
}

func TestParseOrderEventNumericIDs(t *testing.T) {
	raw := []byte(`{
		"event": "ORDER.PAID",
		"order_id": 991203,
		"customer": { "email": "a@x.com" },
		"line_items": [ { "product_id": 42 } ]
	}`)

	event, err := ParseOrderEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if event.Type != EventOrderPaid {
		t.Fatalf("expected type normalized to lowercase, got %q", event.Type)
	}
	if event.OrderID.String() != "991203" {
		t.Fatalf("expected numeric order id as string, got %q", event.OrderID)
	}
	if event.LineItems[0].ProductRef.String() != "42" {
		t.Fatalf("expected numeric product id as string, got %q", event.LineItems[0].ProductRef)
	}
}

func TestParseOrderEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{{{`},
		{name: "missing event tag", raw: `{"order_id":"ORD-1","customer":{"email":"a@x.com"},"line_items":[{"product_id":"p"}]}`},
		{name: "missing order id", raw: `{"event":"order.paid","customer":{"email":"a@x.com"},"line_items":[{"product_id":"p"}]}`},
		{name: "invalid email", raw: `{"event":"order.paid","order_id":"ORD-1","customer":{"email":"not-an-email"},"line_items":[{"product_id":"p"}]}`},
		{name: "empty line items", raw: `{"event":"order.paid","order_id":"ORD-1","customer":{"email":"a@x.com"},"line_items":[]}`},
		{name: "boolean product id", raw: `{"event":"order.paid","order_id":"ORD-1","customer":{"email":"a@x.com"},"line_items":[{"product_id":true}]}`},
	}

	for _, tt := range tests {
		_, err := ParseOrderEvent([]byte(tt.raw))
		if err == nil {
			t.Fatalf("%s: expected parse error", tt.name)
		}
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", tt.name, err)
		}
	}
}

func TestEventTypeClassification(t *testing.T) {
	tests := []struct {
		in     string
		grant  bool
		revoke bool
	}{
		{in: "order.paid", grant: true},
		{in: " ORDER.PAID ", grant: true},
		{in: "order.refunded", revoke: true},
		{in: "order.canceled", revoke: true},
		{in: "order.chargeback", revoke: true},
		{in: "subscription.renewed"},
		{in: ""},
	}

	for _, tt := range tests {
		if got := IsGrantEvent(tt.in); got != tt.grant {
			t.Fatalf("IsGrantEvent(%q) = %v, want %v", tt.in, got, tt.grant)
		}
		if got := IsRevokeEvent(tt.in); got != tt.revoke {
			t.Fatalf("IsRevokeEvent(%q) = %v, want %v", tt.in, got, tt.revoke)
		}
	}
}
