package chatmodel

import (
	goerr "errors"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrInvalidChatContext(t *testing.T) {
	err := ErrInvalidChatContext
	assert.True(t, goerr.Is(errors.WithStack(err), ErrInvalidChatContext))
	assert.True(t, goerr.Is(errors.Wrap(err, "test"), ErrInvalidChatContext))
	assert.True(t, goerr.Is(errors.WithMessage(err, "test"), ErrInvalidChatContext))
	assert.Equal(t, "invalid chat context", err.Error())
}
