package text

import (
	"encoding/json"
)

type Stringer interface {
	String() string
}

type Unmarshaler interface {
	Unmarshal(bs []byte) error
}

// Encoder prints the value as is, when it is a string or Stringer,
// otherwise as compact JSON
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case Stringer:
		return []byte(s.String()), nil
	case error:
		return []byte(s.Error()), nil
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case *string:
		if s == nil {
			return []byte("null"), nil
		}
		return []byte(*s), nil
	case *[]byte:
		if s == nil {
			return []byte("null"), nil
		}
		return *s, nil
	}
	return json.Marshal(v)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	switch s := ret.(type) {
	case Unmarshaler:
		return s.Unmarshal(bs)
	case *string:
		*s = string(bs)
	case *[]byte:
		*s = bs
	default:
		return json.Unmarshal(bs, ret)
	}
	return nil
}
