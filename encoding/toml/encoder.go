package toml

import (
	"bytes"
	"encoding/json"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llmutils"
)

// Encoder encodes the values by their JSON names.
// TOML document is a table, so the value must be encoded as JSON object.
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	if err = dec.Decode(&m); err != nil {
		return nil, errors.Wrapf(err, "toml: %T must be encoded as object", v)
	}

	var b bytes.Buffer
	if err = toml.NewEncoder(&b).Encode(normalizeMap(m)); err != nil {
		return nil, errors.WithStack(err)
	}
	return b.Bytes(), nil
}

// Unmarshal decodes TOML to the value by its JSON names
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	var m map[string]any
	if _, err := toml.Decode(string(llmutils.BytesTrimBackticks(bs)), &m); err != nil {
		return errors.WithStack(err)
	}
	js, err := json.Marshal(m)
	if err != nil {
		return errors.WithStack(err)
	}
	return json.Unmarshal(js, ret)
}

// normalizeMap removes nil values as TOML has no null,
// and converts the JSON numbers to integers where possible
func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = normalize(v)
	}
	return m
}

func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		return normalizeMap(val)
	case []any:
		list := make([]any, 0, len(val))
		for _, item := range val {
			if item != nil {
				list = append(list, normalize(item))
			}
		}
		return list
	}
	return v
}
