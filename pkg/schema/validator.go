package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates JSON documents against JSON schemas.
// Compiled schemas are cached by the hash of the schema document.
type Validator struct {
	lock  sync.RWMutex
	cache map[uint64]*jsonschema.Schema
}

// NewValidator returns a new Validator
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[uint64]*jsonschema.Schema),
	}
}

// DefaultValidator is the shared validator
var DefaultValidator = NewValidator()

// Compile returns the compiled schema for the schema value
func (v *Validator) Compile(schema any) (*jsonschema.Schema, error) {
	js, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	key := xxhash.Sum64(js)

	v.lock.RLock()
	s, ok := v.cache[key]
	v.lock.RUnlock()
	if ok {
		return s, nil
	}

	url := "mem://schema/" + strconv.FormatUint(key, 16) + ".json"
	c := jsonschema.NewCompiler()
	if err = c.AddResource(url, bytes.NewReader(js)); err != nil {
		return nil, errors.Wrap(err, "invalid schema")
	}
	s, err = c.Compile(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile schema")
	}

	v.lock.Lock()
	v.cache[key] = s
	v.lock.Unlock()
	return s, nil
}

// Validate validates the JSON document against the schema.
// An empty schema accepts any document.
func (v *Validator) Validate(schema any, doc []byte) error {
	if isEmpty(schema) {
		return nil
	}
	s, err := v.Compile(schema)
	if err != nil {
		return err
	}

	var val any
	if err = json.Unmarshal(doc, &val); err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	if err = s.Validate(val); err != nil {
		return errors.WithMessage(err, "arguments do not match the schema")
	}
	return nil
}

// Len returns the number of cached schemas
func (v *Validator) Len() int {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return len(v.cache)
}
