// Package chatclient provides the chat client: it sends the user prompt to the LLM
// with the system prompt and the chat history, executes the tool calls requested by the LLM,
// and returns the final answer.
package chatclient
