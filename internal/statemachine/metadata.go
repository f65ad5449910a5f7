package statemachine

import "encoding/json"

// Metadata is a read-only JSON map attached to a machine, usually the node's raw config.
type Metadata struct {
	data map[string]json.RawMessage
}

// MetadataFromJSON parses a JSON object.
func MetadataFromJSON(raw []byte) (*Metadata, error) {
	data := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	return &Metadata{data: data}, nil
}

// MetadataFromMap encodes every value of m. Values that cannot be encoded are skipped.
func MetadataFromMap(m map[string]any) *Metadata {
	data := make(map[string]json.RawMessage, len(m))

	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}

		data[k] = raw
	}

	return &Metadata{data: data}
}

// Contains reports whether key is present.
func (m *Metadata) Contains(key string) bool {
	if m == nil {
		return false
	}

	_, ok := m.data[key]

	return ok
}

// Decode unmarshals the value under key into out.
func (m *Metadata) Decode(key string, out any) bool {
	if m == nil {
		return false
	}

	raw, ok := m.data[key]
	if !ok {
		return false
	}

	return json.Unmarshal(raw, out) == nil
}

// Get decodes the value under key as T.
func Get[T any](m *Metadata, key string) (T, bool) {
	var v T
	ok := m.Decode(key, &v)

	return v, ok
}

func (m *Metadata) GetString(key string) (string, bool)   { return Get[string](m, key) }
func (m *Metadata) GetInt64(key string) (int64, bool)     { return Get[int64](m, key) }
func (m *Metadata) GetFloat64(key string) (float64, bool) { return Get[float64](m, key) }
func (m *Metadata) GetBool(key string) (bool, bool)       { return Get[bool](m, key) }
