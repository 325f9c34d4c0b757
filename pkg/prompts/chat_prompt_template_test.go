package prompts

import (
	"testing"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatPromptTemplate(t *testing.T) {
	t.Parallel()

	template := NewChatPromptTemplate([]MessageFormatter{
		NewSystemMessagePromptTemplate(
			"You are a MongoDB assistant. Use the tools to answer.",
			nil,
		),
		NewHumanMessagePromptTemplate(
			`list collections of {{.database}} in {{.cluster}}`,
			[]string{"database", "cluster"},
		),
	})
	assert.Equal(t, []string{"database", "cluster"}, template.GetInputVariables())

	value, err := template.FormatPrompt(map[string]any{
		"database": "mydb",
		"cluster":  "local",
	})
	require.NoError(t, err)
	expectedMessages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are a MongoDB assistant. Use the tools to answer."),
		llms.MessageFromTextParts(llms.RoleHuman, `list collections of mydb in local`),
	}
	require.Equal(t, expectedMessages, value.Messages())
	assert.Equal(t, "SYSTEM: You are a MongoDB assistant. Use the tools to answer.\nHUMAN: list collections of mydb in local\n", value.String())

	_, err = template.FormatPrompt(map[string]any{
		"database": "mydb",
	})
	require.EqualError(t, err, "missing input variable: cluster")
}
