package ddd

// Record is a current state record with named fields.
type Record interface {
	ID() string
	Fields() Fields
}

// Document is a schemaless record, used for base aggregate state.
type Document struct {
	Id      string
	Deleted bool
	Values  *Payload
}

func NewDocument(id string, values *Payload) *Document {
	if values == nil {
		values = NewPayload()
	}
	return &Document{Id: id, Values: values}
}

func (d *Document) ID() string {
	return d.Id
}

func (d *Document) Fields() Fields {
	if d.Values == nil {
		d.Values = NewPayload()
	}
	fields := make(Fields, d.Values.Len())
	for _, key := range d.Values.Keys() {
		fields[key] = documentField{doc: d, key: key}
	}
	return fields
}

type documentField struct {
	doc *Document
	key string
}

func (f documentField) Get() any {
	v, _ := f.doc.Values.Get(f.key)
	return cloneValue(v)
}

func (f documentField) Set(value any) error {
	f.doc.Values.Set(f.key, cloneValue(value))
	return nil
}
