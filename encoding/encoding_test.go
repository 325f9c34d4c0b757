package encoding_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/effective-security/mcpchat/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listResult struct {
	Collections []string `json:"collections"`
	NextCursor  string   `json:"nextCursor,omitempty"`
}

func TestParseFormat(t *testing.T) {
	tcases := []struct {
		in  string
		exp encoding.Format
		err string
	}{
		{in: "", exp: encoding.FormatDefault},
		{in: "text", exp: encoding.FormatText},
		{in: " JSON ", exp: encoding.FormatJSON},
		{in: "Yaml", exp: encoding.FormatYAML},
		{in: "toml", exp: encoding.FormatTOML},
		{in: "xml", err: `unsupported format: "xml"`},
	}
	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			f, err := encoding.ParseFormat(tc.in)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, f)
		})
	}
}

func TestNew(t *testing.T) {
	for _, f := range encoding.Formats() {
		enc, err := encoding.New(f)
		require.NoError(t, err, f)
		assert.NotNil(t, enc)
	}
	_, err := encoding.New("xml")
	assert.EqualError(t, err, `unsupported format: "xml"`)
}

func TestPrint(t *testing.T) {
	v := &listResult{Collections: []string{"users", "orders"}}

	tcases := []struct {
		format encoding.Format
		exp    string
	}{
		{
			format: encoding.FormatText,
			exp:    "listCollections = {\"collections\":[\"users\",\"orders\"]}\n",
		},
		{
			format: encoding.FormatJSON,
			exp:    "listCollections = {\n  \"collections\": [\n    \"users\",\n    \"orders\"\n  ]\n}\n",
		},
		{
			format: encoding.FormatYAML,
			exp:    "listCollections = collections:\n  - users\n  - orders\n",
		},
	}
	for _, tc := range tcases {
		t.Run(string(tc.format), func(t *testing.T) {
			enc, err := encoding.New(tc.format)
			require.NoError(t, err)

			var b bytes.Buffer
			require.NoError(t, encoding.Print(&b, enc, "listCollections", v))
			assert.Equal(t, tc.exp, b.String())
		})
	}

	t.Run("string", func(t *testing.T) {
		enc, err := encoding.New(encoding.FormatText)
		require.NoError(t, err)

		var b bytes.Buffer
		require.NoError(t, encoding.Print(&b, enc, "chat", "Hello from MCP\n"))
		assert.Equal(t, "chat = Hello from MCP\n", b.String())
	})

	t.Run("error", func(t *testing.T) {
		enc, err := encoding.New(encoding.FormatTOML)
		require.NoError(t, err)

		var b bytes.Buffer
		err = encoding.Print(&b, enc, "listTools", []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to encode listTools")
		assert.Empty(t, b.String())
	})

	t.Run("writer", func(t *testing.T) {
		enc, err := encoding.New(encoding.FormatText)
		require.NoError(t, err)
		assert.EqualError(t, encoding.Print(failingWriter{}, enc, "x", "y"), "write failed")
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}
