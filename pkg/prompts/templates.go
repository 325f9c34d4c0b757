package prompts

import (
	"bytes"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
)

// ErrInvalidTemplateFormat is returned for an unsupported template format.
var ErrInvalidTemplateFormat = errors.New("invalid template format")

// TemplateFormat is the format of a prompt template.
type TemplateFormat string

const (
	// TemplateFormatGoTemplate is Go text/template with sprig functions.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is jinja2 rendered by gonja.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
)

// TemplateFormats returns the supported formats
func TemplateFormats() []TemplateFormat {
	return []TemplateFormat{TemplateFormatGoTemplate, TemplateFormatJinja2}
}

// ParseTemplateFormat returns the format by name, empty name is go-template.
func ParseTemplateFormat(name string) (TemplateFormat, error) {
	if name == "" {
		return TemplateFormatGoTemplate, nil
	}
	f := TemplateFormat(strings.ToLower(name))
	if !slices.Contains(TemplateFormats(), f) {
		return "", errors.Wrapf(ErrInvalidTemplateFormat, "%q", name)
	}
	return f, nil
}

// RenderTemplate renders the template with the values.
func RenderTemplate(tmpl string, format TemplateFormat, values map[string]any) (string, error) {
	switch format {
	case TemplateFormatGoTemplate, "":
		return interpolateGoTemplate(tmpl, values)
	case TemplateFormatJinja2:
		return interpolateJinja2(tmpl, values)
	default:
		return "", errors.Wrapf(ErrInvalidTemplateFormat, "%q", format)
	}
}

// CheckValidTemplate returns an error if the template cannot be rendered
// with empty values for the input variables.
func CheckValidTemplate(tmpl string, format TemplateFormat, inputVariables []string) error {
	dummy := make(map[string]any, len(inputVariables))
	for _, v := range inputVariables {
		dummy[v] = "foo"
	}
	_, err := RenderTemplate(tmpl, format, dummy)
	return err
}

func interpolateGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	var sb bytes.Buffer
	if err = parsed.Execute(&sb, values); err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}
	return sb.String(), nil
}

func interpolateJinja2(tmpl string, values map[string]any) (string, error) {
	tpl, err := gonja.FromString(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	out, err := tpl.Execute(values)
	if err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}
	return out, nil
}
