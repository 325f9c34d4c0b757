package json

import (
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/effective-security/mcpchat/pkg/llmutils"
)

type Encoder struct {
	indent string
}

// NewEncoder returns the encoder with 2 spaces indent
func NewEncoder() *Encoder {
	return &Encoder{indent: "  "}
}

// WithIndent sets the indent, empty for the compact JSON
func (e *Encoder) WithIndent(indent string) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if e.indent == "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", e.indent)
}

// Unmarshal is lenient to the fenced JSON with the surrounding text
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(llmutils.BytesTrimBackticks(bs))
	return ljson.Unmarshal(data, ret)
}
