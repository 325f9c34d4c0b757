package yaml

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// Encoder encodes the values by their JSON names,
// the order of the fields is kept
type Encoder struct {
	indent int
}

func NewEncoder() *Encoder {
	return &Encoder{indent: 2}
}

func (e *Encoder) WithIndent(indent int) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// JSON is YAML, the node keeps the field order
	var doc yaml.Node
	if err = yaml.Unmarshal(js, &doc); err != nil {
		return nil, errors.WithStack(err)
	}
	resetStyle(&doc)

	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(e.indent)
	if err = enc.Encode(&doc); err != nil {
		return nil, errors.WithStack(err)
	}
	if err = enc.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return b.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return k8syaml.Unmarshal(data, ret)
}

// resetStyle switches the flow and quoted JSON nodes to the block style,
// the strings that need quotes are still quoted by the encoder
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
