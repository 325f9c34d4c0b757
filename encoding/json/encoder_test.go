package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collection struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMarshal(t *testing.T) {
	v := []collection{{Name: "users", Count: 2}}

	bs, err := NewEncoder().Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"name\": \"users\",\n    \"count\": 2\n  }\n]", string(bs))

	bs, err = NewEncoder().WithIndent("").Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"users","count":2}]`, string(bs))
}

func TestUnmarshal(t *testing.T) {
	tcases := []struct {
		name string
		in   string
	}{
		{name: "plain", in: `{"name":"users","count":2}`},
		{name: "fenced", in: "```json\n{\"name\":\"users\",\"count\":2}\n```"},
		{name: "prefix", in: `Here is the collection: {"name":"users","count":2}. Anything else?`},
	}

	enc := NewEncoder()
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var c collection
			require.NoError(t, enc.Unmarshal([]byte(tc.in), &c))
			assert.Equal(t, collection{Name: "users", Count: 2}, c)
		})
	}
}
