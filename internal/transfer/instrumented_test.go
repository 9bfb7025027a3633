package transfer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedProtocol_DelegatesWithoutTelemetry(t *testing.T) {
	proto := newMockProtocol()
	p := NewInstrumentedProtocol(proto, nil, "multipart")

	id, err := p.Initiate(context.Background(), "a.bin", 1)
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)

	require.NoError(t, p.UploadPart(context.Background(), Part{Index: 0, Body: strings.NewReader("abc"), Size: 3}))
	require.NoError(t, p.Complete(context.Background(), "a.bin", id, 1))

	assert.Equal(t, []byte("abc"), proto.received[0])
	assert.Equal(t, 1, proto.completeCalls)
}

func TestInstrumentedProtocol_PropagatesErrors(t *testing.T) {
	proto := newMockProtocol()
	proto.initErr = errors.New("HTTP 401")

	_, err := NewInstrumentedProtocol(proto, nil, "chunk").Initiate(context.Background(), "a.bin", 1)
	require.ErrorIs(t, err, proto.initErr)
}

func TestInstrumentedSource(t *testing.T) {
	s := NewInstrumentedSource(staticSource([]byte("data"), 4), nil)

	body, size, err := s.Download(context.Background(), "a.bin")
	require.NoError(t, err)

	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, int64(4), size)
}
