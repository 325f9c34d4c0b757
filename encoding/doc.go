// Package encoding provides the encoders of the command output.
package encoding
