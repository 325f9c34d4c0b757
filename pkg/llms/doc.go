// Package llms provides unified support for chat models from various providers.
//
// Each subpackage includes a provider-specific implementation of the Model interface,
// converting the provider-neutral messages, tools and call options to the provider's API.
//
// The `message.go` file contains the message and response types,
// `options.go` provides the call options to configure the requests.
package llms
