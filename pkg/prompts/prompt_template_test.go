package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate_Format(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name     string
		prompt   PromptTemplate
		values   map[string]any
		expected string
		err      string
	}{
		{
			name:     "go template with sprig",
			prompt:   NewPromptTemplate(`Database: {{ .database | upper }}{{ if .readonly }} (read-only){{ end }}`, []string{"database"}),
			values:   map[string]any{"database": "mydb", "readonly": true},
			expected: "Database: MYDB (read-only)",
		},
		{
			name: "jinja2",
			prompt: PromptTemplate{
				Template:       `Database: {{ database | upper }}{% if readonly %} (read-only){% endif %}`,
				InputVariables: []string{"database"},
				TemplateFormat: TemplateFormatJinja2,
			},
			values:   map[string]any{"database": "mydb", "readonly": false},
			expected: "Database: MYDB",
		},
		{
			name: "partial variables",
			prompt: PromptTemplate{
				Template:         `{{.greeting}}, {{.name}}`,
				InputVariables:   []string{"name"},
				PartialVariables: map[string]any{"greeting": "Hello", "name": "nobody"},
			},
			values:   map[string]any{"name": "MCP Client"},
			expected: "Hello, MCP Client",
		},
		{
			name:   "missing input",
			prompt: NewPromptTemplate(`{{.database}}`, []string{"database"}),
			err:    "missing input variable: database",
		},
		{
			name:   "missing key in template",
			prompt: NewPromptTemplate(`{{.database}}`, nil),
			values: map[string]any{},
			err:    "failed to execute template",
		},
		{
			name:   "unknown format",
			prompt: PromptTemplate{Template: "x", TemplateFormat: "f-string"},
			err:    `"f-string": invalid template format`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := tc.prompt.Format(tc.values)
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, res)
		})
	}
}

func TestParseTemplateFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseTemplateFormat("")
	require.NoError(t, err)
	assert.Equal(t, TemplateFormatGoTemplate, f)

	f, err = ParseTemplateFormat("Jinja2")
	require.NoError(t, err)
	assert.Equal(t, TemplateFormatJinja2, f)

	_, err = ParseTemplateFormat("mustache")
	assert.ErrorIs(t, err, ErrInvalidTemplateFormat)
}

func TestCheckValidTemplate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckValidTemplate(`{{.a}} {{.b}}`, TemplateFormatGoTemplate, []string{"a", "b"}))
	assert.Error(t, CheckValidTemplate(`{{.a}`, TemplateFormatGoTemplate, []string{"a"}))
	assert.Error(t, CheckValidTemplate(`{{.a}} {{.c}}`, TemplateFormatGoTemplate, []string{"a"}))
	assert.NoError(t, CheckValidTemplate(`{{ a }}`, TemplateFormatJinja2, []string{"a"}))
}
