package mongoDb

import (
	ddd "github.com/paulvitic/ddd-projector"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toDocument keeps the payload property order.
func toDocument(p *ddd.Payload) bson.D {
	if p == nil {
		return nil
	}
	doc := make(bson.D, 0, p.Len())
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		doc = append(doc, bson.E{Key: key, Value: toBsonValue(value)})
	}
	return doc
}

func toBsonValue(value any) any {
	switch v := value.(type) {
	case *ddd.Payload:
		return toDocument(v)
	case []any:
		out := make(bson.A, len(v))
		for i, item := range v {
			out[i] = toBsonValue(item)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(v))
		for k, item := range v {
			out[k] = toBsonValue(item)
		}
		return out
	default:
		return v
	}
}

// fromDocument turns a stored document back into the shapes a JSON decoded
// payload would have, so events read the same from any log.
func fromDocument(doc bson.D) *ddd.Payload {
	if doc == nil {
		return nil
	}
	p := ddd.NewPayload()
	for _, e := range doc {
		p.Set(e.Key, fromBsonValue(e.Value))
	}
	return p
}

func fromBsonValue(value any) any {
	switch v := value.(type) {
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = fromBsonValue(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = fromBsonValue(item)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromBsonValue(item)
		}
		return out
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case primitive.DateTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	case primitive.ObjectID:
		return v.Hex()
	default:
		return v
	}
}
