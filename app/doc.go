// Package app wires the MCP clients, the tools and the chat client.
//
// The startup sequence lists the tools of the first MCP server
// and calls the list-collections tool, printing both results.
package app
