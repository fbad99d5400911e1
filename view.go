package ddd

import (
	"errors"
	"fmt"
	"time"
)

// Projection is a denormalized read model record rebuilt from events.
// It is only mutated by the events its Apply recognizes.
type Projection interface {
	Base() *View
	Fields() Fields
	Apply(Event) error
}

// View carries the state every projection shares. Embed it inline.
type View struct {
	Id            string     `bson:"_id" json:"id"`
	Partition     string     `bson:"partitionKey" json:"partitionKey"`
	IsInitialized bool       `bson:"initialized" json:"initialized"`
	IsDeleted     bool       `bson:"deleted" json:"deleted"`
	DeletedAt     *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	ExpiresAt     *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

func (v *View) Base() *View {
	return v
}

func (v *View) ID() string {
	return v.Id
}

func (v *View) PartitionKey() string {
	return v.Partition
}

func (v *View) Initialized() bool {
	return v.IsInitialized
}

func (v *View) MarkInitialized() {
	v.IsInitialized = true
}

func (v *View) Deleted() bool {
	return v.IsDeleted
}

// MarkDeleted soft deletes the record. A positive ttl sets an expiry.
func (v *View) MarkDeleted(at time.Time, ttl time.Duration) {
	at = at.UTC()
	v.IsDeleted = true
	v.DeletedAt = &at
	if ttl > 0 {
		expires := at.Add(ttl)
		v.ExpiresAt = &expires
	}
}

// Subscriptions declares which commands mutate a projection type.
type Subscriptions struct {
	upserts     []Command
	deletes     []Command
	expireAfter time.Duration
}

func SubscribedTo(upserts ...Command) *Subscriptions {
	return &Subscriptions{upserts: upserts}
}

func (s *Subscriptions) DeletedBy(deletes ...Command) *Subscriptions {
	s.deletes = append(s.deletes, deletes...)
	return s
}

func (s *Subscriptions) ExpireAfter(ttl time.Duration) *Subscriptions {
	s.expireAfter = ttl
	return s
}

func (s *Subscriptions) Upserts(c Command) bool {
	for _, u := range s.upserts {
		if u.Equals(c) {
			return true
		}
	}
	return false
}

func (s *Subscriptions) Deletes(c Command) bool {
	for _, d := range s.deletes {
		if d.Equals(c) {
			return true
		}
	}
	return false
}

// Mutate applies event to target. Unknown commands are ignored. Payload
// properties without a matching field are ignored; a property that cannot be
// coerced into its field is reported but does not stop the others.
func (s *Subscriptions) Mutate(target Projection, event Event) error {
	switch {
	case s.Upserts(event.Command()):
		base := target.Base()
		if base.Partition == "" {
			base.Partition = event.PartitionKey()
		}
		return copyPayload(target.Fields(), event.payload)
	case s.Deletes(event.Command()):
		target.Base().MarkDeleted(event.TimeStamp(), s.expireAfter)
		return nil
	default:
		return nil
	}
}

func copyPayload(fields Fields, payload *Payload) error {
	var errs []error
	for _, name := range payload.Keys() {
		field, ok := fields[name]
		if !ok {
			continue
		}
		value, _ := payload.Get(name)
		if err := field.Set(cloneValue(value)); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyAll applies events to p in timestamp order. Every event is applied even
// when an earlier one reports an error; the errors are joined.
func ApplyAll(p Projection, events []Event) error {
	ordered := append([]Event(nil), events...)
	SortEvents(ordered)
	var errs []error
	for _, e := range ordered {
		if err := p.Apply(e); err != nil {
			errs = append(errs, fmt.Errorf("apply event %s: %w", e.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Clone deep copies p into a fresh instance made by newProjection.
func Clone[P Projection](p P, newProjection func() P) (P, error) {
	c := newProjection()
	*c.Base() = *p.Base()
	err := CopyFields(c.Fields(), p.Fields())
	return c, err
}
