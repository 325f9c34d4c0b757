package prompts

import (
	"maps"

	"github.com/cockroachdb/errors"
)

// PromptTemplate is a text template with its input variables.
type PromptTemplate struct {
	// Template is the prompt template.
	Template string
	// InputVariables are the variables required by the template.
	InputVariables []string
	// TemplateFormat is the format of the template, go-template by default.
	TemplateFormat TemplateFormat
	// PartialVariables are values applied before the input values,
	// the input values override them.
	PartialVariables map[string]any
}

// NewPromptTemplate returns a go-template prompt template
func NewPromptTemplate(template string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       template,
		InputVariables: inputVars,
		TemplateFormat: TemplateFormatGoTemplate,
	}
}

// Format renders the template with the values
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	resolved, err := p.resolveValues(values)
	if err != nil {
		return "", err
	}
	return RenderTemplate(p.Template, p.TemplateFormat, resolved)
}

// GetInputVariables returns the input variables of the prompt
func (p PromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

func (p PromptTemplate) resolveValues(values map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(values)+len(p.PartialVariables))
	maps.Copy(resolved, p.PartialVariables)
	maps.Copy(resolved, values)

	for _, v := range p.InputVariables {
		if _, ok := resolved[v]; !ok {
			return nil, errors.Newf("missing input variable: %s", v)
		}
	}
	return resolved, nil
}
