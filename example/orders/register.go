package orders

import (
	"context"
	"strings"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/application"
)

// Register mounts the orders projection. Customer and address events are
// read from the customers service at customersURL.
func Register(ctx context.Context, srv *application.Server, customersURL string) (*ddd.Initializer[*Order], error) {
	events := strings.TrimRight(customersURL, "/") + "/events"
	return application.Register(ctx, srv, application.Projection[*Order]{
		Name:            "orders",
		StateCollection: "orderStates",
		New:             New,
		Configure: func(f *ddd.Factory[*Order]) *ddd.Factory[*Order] {
			return f.
				Requesting(ddd.NewEventRequester(events, func(o *Order) string { return o.CustomerID })).
				DependentRequesting(ddd.NewEventRequester(events, func(o *Order) string { return o.AddressID }))
		},
	})
}
