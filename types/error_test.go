package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrNodeFailed, "node exploded").WithCause(root)

	assert.Equal(t, ErrNodeFailed, GetErrorCode(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, "[NODE_FAILED] node exploded: root", err.Error())
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := Errorf(ErrToolNotFound, "tool %q not registered", "x")
	wrapped := fmt.Errorf("dispatch: %w", inner)

	assert.True(t, IsErrorCode(wrapped, ErrToolNotFound))
	assert.False(t, IsErrorCode(wrapped, ErrToolTimeout))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrToolNotFound))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}
