package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// partJSON is the wire form of a ContentPart
type partJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

type messageJSON struct {
	Role  Role       `json:"role"`
	Text  string     `json:"text,omitempty"`
	Parts []partJSON `json:"parts,omitempty"`
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	// single text part is simplified
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok && tp.Text != "" {
			return json.Marshal(messageJSON{Role: m.Role, Text: tp.Text})
		}
	}

	mj := messageJSON{
		Role:  m.Role,
		Parts: make([]partJSON, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		switch pp := p.(type) {
		case TextContent:
			mj.Parts = append(mj.Parts, partJSON{Type: "text", Text: pp.Text})
		case ToolCall:
			mj.Parts = append(mj.Parts, partJSON{Type: "tool_call", ToolCall: &pp})
		case ToolCallResponse:
			mj.Parts = append(mj.Parts, partJSON{Type: "tool_response", ToolResponse: &pp})
		default:
			return nil, errors.Newf("unsupported content part: %T", p)
		}
	}
	return json.Marshal(mj)
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return errors.WithStack(err)
	}

	m.Role = mj.Role
	m.Parts = nil
	if mj.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: mj.Text}}
		return nil
	}

	for _, p := range mj.Parts {
		switch p.Type {
		case "text", "":
			m.Parts = append(m.Parts, TextContent{Text: p.Text})
		case "tool_call":
			if p.ToolCall == nil {
				return errors.New("tool_call field is required for tool_call type")
			}
			m.Parts = append(m.Parts, *p.ToolCall)
		case "tool_response":
			if p.ToolResponse == nil {
				return errors.New("tool_response field is required for tool_response type")
			}
			m.Parts = append(m.Parts, *p.ToolResponse)
		default:
			return errors.Newf("unknown content part type: %s", p.Type)
		}
	}
	return nil
}
