package orders

import (
	"time"

	ddd "github.com/paulvitic/ddd-projector"
)

var Cancel = ddd.NewCommand("Cancel", false)

var subscriptions = ddd.SubscribedTo(ddd.Create, ddd.Update).
	DeletedBy(Cancel, ddd.Delete).
	ExpireAfter(30 * 24 * time.Hour)

// Order is the read model of an order with its customer and shipping
// address inlined. The address id is only known from the customer's events.
type Order struct {
	ddd.View     `bson:",inline"`
	CustomerID   string    `bson:"customerId" json:"customerId"`
	Total        float64   `bson:"total" json:"total"`
	Items        []string  `bson:"items" json:"items"`
	PlacedAt     time.Time `bson:"placedAt" json:"placedAt"`
	CustomerName string    `bson:"customerName" json:"customerName"`
	AddressID    string    `bson:"addressId" json:"addressId"`
	Street       string    `bson:"street" json:"street"`
	City         string    `bson:"city" json:"city"`
}

func New() *Order {
	return &Order{}
}

func (o *Order) Fields() ddd.Fields {
	return ddd.Fields{
		"customerId": ddd.StringField(&o.CustomerID),
		"total":      ddd.FloatField(&o.Total),
		"items":      ddd.StringsField(&o.Items),
		"placedAt":   ddd.TimeField(&o.PlacedAt),
		"name":       ddd.StringField(&o.CustomerName),
		"addressId":  ddd.StringField(&o.AddressID),
		"street":     ddd.StringField(&o.Street),
		"city":       ddd.StringField(&o.City),
	}
}

func (o *Order) Apply(e ddd.Event) error {
	return subscriptions.Mutate(o, e)
}
