package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_Encoders(t *testing.T) {
	v := map[string]any{"database": "mydb"}
	assert.Equal(t, `{"database":"mydb"}`, llmutils.ToJSON(v))
	assert.Equal(t, "{\n\t\"database\": \"mydb\"\n}", llmutils.ToJSONIndent(v))
	assert.Equal(t, "database: mydb\n", llmutils.ToYAML(v))
	assert.Equal(t, "\n```json\n{}\n```\n", llmutils.BackticksJSON(" {} "))
}

func Test_MergeInputs(t *testing.T) {
	cfg := map[string]any{"db": "mydb", "lang": "en"}
	res := llmutils.MergeInputs(cfg, map[string]any{"lang": "fr"})
	assert.Equal(t, map[string]any{"db": "mydb", "lang": "fr"}, res)
	assert.Equal(t, "en", cfg["lang"])
	assert.Empty(t, llmutils.MergeInputs(nil, nil))
}

func messages() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "first"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "list", Arguments: "{}"},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "1", Name: "list", Content: "users"}),
		llms.MessageFromTextParts(llms.RoleHuman, "second"),
	}
}

func Test_PrintMessages(t *testing.T) {
	var b strings.Builder
	llmutils.PrintMessages(&b, messages())
	assert.Equal(t, `HUMAN: first
AI: ToolCall ID=1, Func=list({})
TOOL: ToolCallResponse ID=1, Name=list, IsError=false, Content=users
HUMAN: second
`, b.String())
}

func Test_Counters(t *testing.T) {
	// human(5)+first(5) + ai(2)+1+function(8)+list(4)+{}(2) + tool(4)+1+list(4)+users(5) + human(5)+second(6)
	assert.Equal(t, uint64(52), llmutils.CountMessagesContentSize(messages()))

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:        "hello",
				GenerationInfo: map[string]any{"InputTokens": int64(10), "OutputTokens": int64(2), "TotalTokens": int64(12)},
			},
			{
				ToolCalls:      []llms.ToolCall{{ID: "2", FunctionCall: &llms.FunctionCall{Name: "x", Arguments: "{}"}}},
				GenerationInfo: map[string]any{"InputTokens": int64(1), "OutputTokens": int64(1), "TotalTokens": int64(2)},
			},
		},
	}
	assert.Equal(t, uint64(9), llmutils.CountResponseContentSize(resp))
	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(11), in)
	assert.Equal(t, int64(3), out)
	assert.Equal(t, int64(14), total)
}

func Test_FindLastUserQuestion(t *testing.T) {
	assert.Equal(t, "second", llmutils.FindLastUserQuestion(messages()))
	assert.Empty(t, llmutils.FindLastUserQuestion(nil))
}

func Test_CleanJSON(t *testing.T) {
	tcases := []struct {
		in  string
		exp string
	}{
		{in: `{"a":1}`, exp: `{"a":1}`},
		{in: `Here you go: {"a":1} Enjoy!`, exp: `{"a":1}`},
		{in: `list: [1,2] done`, exp: `[1,2]`},
		{in: `no json`, exp: `no json`},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, string(llmutils.CleanJSON([]byte(tc.in))), tc.in)
	}
}

func Test_TrimBackticks(t *testing.T) {
	assert.Equal(t, `{"a":1}`, llmutils.TrimBackticks("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, llmutils.TrimBackticks("```{\"a\":1}```"))
	assert.Equal(t, "a: 1", llmutils.TrimBackticks("Sure:\n```yaml\na: 1\n```\n"))
	assert.Equal(t, "plain", llmutils.TrimBackticks("plain"))
}
