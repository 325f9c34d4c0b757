package encoding

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/mcpchat/encoding/json"
	textenc "github.com/effective-security/mcpchat/encoding/text"
	tomlenc "github.com/effective-security/mcpchat/encoding/toml"
	yamlenc "github.com/effective-security/mcpchat/encoding/yaml"
)

// Encoder encodes the values printed by the commands
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(bs []byte, v any) error
}

// Format of the output
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatDefault is the default output format.
// Allow to override in apps
var FormatDefault = FormatText

var (
	_ Encoder = (*textenc.Encoder)(nil)
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
)

// Formats returns the supported formats
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML, FormatTOML}
}

// ParseFormat returns the format by name, case-insensitive.
// Empty name returns FormatDefault.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatDefault, nil
	case FormatText, FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	default:
		return "", errors.Newf("unsupported format: %q", name)
	}
}

// New returns the encoder for the format
func New(format Format) (Encoder, error) {
	switch format {
	case FormatText:
		return textenc.NewEncoder(), nil
	case FormatJSON:
		return jsonenc.NewEncoder(), nil
	case FormatYAML:
		return yamlenc.NewEncoder(), nil
	case FormatTOML:
		return tomlenc.NewEncoder(), nil
	default:
		return nil, errors.Newf("unsupported format: %q", format)
	}
}

// Print writes `<label> = <encoded value>` line to the writer
func Print(w io.Writer, enc Encoder, label string, v any) error {
	bs, err := enc.Marshal(v)
	if err != nil {
		return errors.WithMessagef(err, "failed to encode %s", label)
	}
	_, err = fmt.Fprintf(w, "%s = %s\n", label, strings.TrimRight(string(bs), "\n"))
	return errors.WithStack(err)
}
