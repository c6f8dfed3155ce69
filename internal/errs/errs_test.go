package errs

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarksSurviveWrapping(t *testing.T) {
	base := UserRejected(errors.New("user denied account access"))
	wrapped := fmt.Errorf("connect: %w", errors.Wrap(base, "session"))

	require.True(t, errors.Is(wrapped, ErrUserRejected))
	assert.False(t, errors.Is(wrapped, ErrNoProvider))
	assert.Equal(t, "user_rejected", Code(wrapped))
	assert.True(t, Retryable(wrapped))
}

func TestTimeout(t *testing.T) {
	err := Timeout(errors.Wrap(context.DeadlineExceeded, "eth_requestAccounts"))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "timeout", Code(err))

	other := errors.New("boom")
	assert.Same(t, other, Timeout(other))
	assert.Nil(t, Timeout(nil))
}

func TestCodes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{name: "no provider", err: NoProvider(errors.New("dial")), code: "no_provider"},
		{name: "mismatch", err: NetworkMismatch(31337, 1), code: "network_mismatch", retryable: true},
		{name: "reverted", err: Reverted("0xabc"), code: "tx_reverted"},
		{name: "upload", err: Upload(errors.New("401")), code: "upload_failed", retryable: true},
		{name: "invalid", err: Invalid("bad price %q", "x"), code: "invalid_input"},
		{name: "plain", err: errors.New("boom"), code: "internal"},
		{name: "nil", err: nil, code: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
		})
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	err := NoProvider(errors.New("missing"))
	assert.Same(t, err, NoProvider(err))
}
