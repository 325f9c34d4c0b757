// Package llmfactory creates and caches LLM models from the providers configuration,
// with model selection by name, provider type or chat client.
package llmfactory
