package customers

import (
	"context"

	ddd "github.com/paulvitic/ddd-projector"
)

const (
	AliceID   = "6f1c2a8e-0d4b-4c1e-9a57-3b1f2d9c8e01"
	AddressID = "9b7e4f12-5c3a-4e8d-b6a1-0f2e7d4c3b02"
)

// Seed appends a customer and the address the customer moved to.
func Seed(ctx context.Context, eventLog ddd.EventLog) error {
	producer := ddd.NewEventProducer().
		RegisterEvent(AliceID, ddd.Create, ddd.PayloadOf("name", "Alice")).
		RegisterEvent(AddressID, ddd.Create, ddd.PayloadOf("street", "Main St 1", "city", "Berlin")).
		RegisterEvent(AliceID, ddd.Update, ddd.PayloadOf("addressId", AddressID))
	return eventLog.Append(ctx, producer.Events()...)
}
