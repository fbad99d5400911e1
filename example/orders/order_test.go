package orders

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/application"
	"github.com/paulvitic/ddd-projector/example/customers"
	"github.com/paulvitic/ddd-projector/inMemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_Apply(t *testing.T) {
	placed := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	o := New()
	o.Id = "o1"

	err := ddd.ApplyAll(o, []ddd.Event{
		ddd.NewEvent("e1", "o1", ddd.Create, ddd.PayloadOf("total", 12.5, "items", []any{"book"}, "placedAt", placed.Format(time.RFC3339)), placed),
		ddd.NewEvent("e2", "o1", Cancel, nil, placed.Add(time.Hour)),
	})
	require.NoError(t, err)

	assert.Equal(t, 12.5, o.Total)
	assert.Equal(t, []string{"book"}, o.Items)
	assert.True(t, placed.Equal(o.PlacedAt))
	assert.True(t, o.Deleted())
	require.NotNil(t, o.ExpiresAt)
	assert.True(t, placed.Add(time.Hour).Add(30*24*time.Hour).Equal(*o.ExpiresAt))
}

func TestRegister_ResolvesAddressThroughCustomer(t *testing.T) {
	ctx := context.Background()

	customerService, err := application.NewServer(ctx, application.DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, customers.Seed(ctx, customerService.EventLog()))
	ts := httptest.NewServer(customerService.Handler())
	defer ts.Close()

	orderService, err := application.NewServer(ctx, application.DefaultSettings())
	require.NoError(t, err)
	initializer, err := Register(ctx, orderService, ts.URL)
	require.NoError(t, err)

	states := orderService.StateStore("orderStates").(*inMemory.StateStore)
	states.Save(ddd.NewDocument("o1", ddd.PayloadOf("customerId", customers.AliceID, "total", 12.5)))

	orders, err := initializer.InitByID(ctx, []string{"o1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "o1", o.ID())
	assert.True(t, o.Initialized())
	assert.Equal(t, "Alice", o.CustomerName)
	assert.Equal(t, customers.AddressID, o.AddressID)
	assert.Equal(t, "Main St 1", o.Street)
	assert.Equal(t, "Berlin", o.City)
	assert.Equal(t, 12.5, o.Total)
}
