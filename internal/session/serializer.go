package session

import "encoding/json"

// Serializer converts payloads to and from the store's byte representation.
// Implementations must round-trip every Payload field; Data values only
// need to survive whatever encoding the implementation uses.
type Serializer interface {
	Dumps(p *Payload) ([]byte, error)
	Loads(raw []byte) (*Payload, error)
}

// JSONSerializer is the default Serializer. Numbers read back from Data
// come out as float64, per encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) Dumps(p *Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Loads decodes a payload. Missing fields are tolerated and land as zero
// values; only malformed input is an error.
func (JSONSerializer) Loads(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	return &p, nil
}
