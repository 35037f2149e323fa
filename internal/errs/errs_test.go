package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStringCoversEveryKind(t *testing.T) {
	kinds := []Kind{
		MalformedPacket, UnsupportedType, BindFailed, TransportError, Timeout,
		Busy, Canceled, PathEscape, InvalidFilename, NotFound, Unsupported,
		SessionLost, LoadUncertain,
	}
	for _, k := range kinds {
		assert.NotEqual(t, "UNKNOWN", k.String(), "kind %d should have a name", k)
	}
	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "UNKNOWN", Kind(999).String())
}

func TestNewWrapsCauseAndFormatsMessage(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New("transport.Open", BindFailed, cause)

	require.Error(t, err)
	assert.Equal(t, "transport.Open: BIND_FAILED: connection refused", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestNewWithNilCauseOmitsColon(t *testing.T) {
	err := New("store.Load", NotFound, nil)
	assert.Equal(t, "store.Load: NOT_FOUND", err.Error())
}

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New("correlator.Request", Timeout, nil)
	var wrapped error = fmt.Errorf("request failed: %w", err)

	assert.True(t, Is(wrapped, Timeout))
	assert.False(t, Is(wrapped, Busy))
}

func TestIsReturnsFalseForPlainErrors(t *testing.T) {
	assert.False(t, Is(errors.New("boom"), Timeout))
	assert.False(t, Is(nil, Timeout))
}

func TestKindOfExtractsKindOrUnknown(t *testing.T) {
	err := New("store.Delete", PathEscape, nil)
	assert.Equal(t, PathEscape, KindOf(err))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}
