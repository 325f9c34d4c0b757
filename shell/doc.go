// Package shell provides the interactive command shell of the MCP chat client.
//
// The shell reads command lines from a terminal with readline, or from any
// reader line by line, splits them as shell words and dispatches them to the
// Handler. The chat command sends "Hello MCP Client" when no text is given.
package shell
