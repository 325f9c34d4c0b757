// Package tools defines the Tool interface for the chat client.
// Tools let the LLM call external systems, such as the tools of MCP servers, with structured arguments.
package tools
