package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFunc func(ctx context.Context, name string) (io.ReadCloser, int64, error)

func (f sourceFunc) Download(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	return f(ctx, name)
}

func staticSource(data []byte, declared int64) sourceFunc {
	return func(context.Context, string) (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(data)), declared, nil
	}
}

func TestDownloadSession_KnownSize(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("x"), 600*1024)

	var events []DownloadProgress

	session, err := NewDownloadSession(staticSource(data, int64(len(data))), &FileMaterializer{Dir: dir}, func(p DownloadProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.NoError(t, session.Download(context.Background(), "movie.mkv"))

	got, err := os.ReadFile(filepath.Join(dir, "movie.mkv"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.False(t, last.Indeterminate)
	assert.Equal(t, int64(len(data)), last.Loaded)

	percent, ok := last.Percent()
	assert.True(t, ok)
	assert.InDelta(t, 100, percent, 1e-9)

	st := session.Status()
	assert.Equal(t, StateSucceeded, st.State)
	assert.InDelta(t, 100, st.Percent, 1e-9)
}

func TestDownloadSession_UnknownSize(t *testing.T) {
	dir := t.TempDir()

	var events []DownloadProgress

	session, err := NewDownloadSession(staticSource([]byte("hello"), -1), &FileMaterializer{Dir: dir}, func(p DownloadProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.NoError(t, session.Download(context.Background(), "notes.txt"))

	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.True(t, last.Indeterminate)
	assert.Equal(t, int64(1), last.Total)
	assert.Equal(t, int64(5), last.Loaded)

	_, ok := last.Percent()
	assert.False(t, ok)
	assert.True(t, session.Status().Indeterminate)
}

func TestDownloadSession_EmptyFileIsKnownSize(t *testing.T) {
	dir := t.TempDir()

	var events []DownloadProgress

	session, err := NewDownloadSession(staticSource(nil, 0), &FileMaterializer{Dir: dir}, func(p DownloadProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.NoError(t, session.Download(context.Background(), "empty.txt"))

	got, err := os.ReadFile(filepath.Join(dir, "empty.txt"))
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, e := range events {
		assert.False(t, e.Indeterminate)
	}

	st := session.Status()
	assert.Equal(t, StateSucceeded, st.State)
	assert.False(t, st.Indeterminate)
	assert.InDelta(t, 100, st.Percent, 1e-9)
}

func TestDownloadSession_ShortBodyLeavesNoFile(t *testing.T) {
	dir := t.TempDir()

	session, err := NewDownloadSession(staticSource([]byte("abc"), 10), &FileMaterializer{Dir: dir}, nil)
	require.NoError(t, err)

	err = session.Download(context.Background(), "broken.bin")

	var dlErr *DownloadFailedError
	require.ErrorAs(t, err, &dlErr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, StateFailed, session.Status().State)
}

func TestDownloadSession_InterruptedStream(t *testing.T) {
	dir := t.TempDir()
	cause := errors.New("connection reset")

	source := sourceFunc(func(context.Context, string) (io.ReadCloser, int64, error) {
		r := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(cause))

		return io.NopCloser(r), 100, nil
	})

	session, err := NewDownloadSession(source, &FileMaterializer{Dir: dir}, nil)
	require.NoError(t, err)

	err = session.Download(context.Background(), "a.bin")
	require.ErrorIs(t, err, cause)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadSession_SourceError(t *testing.T) {
	cause := errors.New("HTTP 404")

	source := sourceFunc(func(context.Context, string) (io.ReadCloser, int64, error) {
		return nil, 0, cause
	})

	session, err := NewDownloadSession(source, &FileMaterializer{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	err = session.Download(context.Background(), "missing.bin")

	var dlErr *DownloadFailedError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, "missing.bin", dlErr.Name)
	assert.ErrorIs(t, err, cause)

	require.ErrorIs(t, session.Download(context.Background(), "missing.bin"), ErrSessionNotIdle)
}

func TestNewDownloadSession_NilCollaborators(t *testing.T) {
	_, err := NewDownloadSession(nil, &FileMaterializer{}, nil)
	require.Error(t, err)

	_, err = NewDownloadSession(staticSource(nil, 0), nil, nil)
	require.Error(t, err)
}

func TestFileMaterializer_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	m := &FileMaterializer{Dir: filepath.Join(dir, "nested")}

	require.NoError(t, m.Materialize(context.Background(), "../../etc/passwd", strings.NewReader("data")))

	got, err := os.ReadFile(filepath.Join(dir, "nested", "passwd"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestFileMaterializer_InvalidName(t *testing.T) {
	m := &FileMaterializer{Dir: t.TempDir()}

	err := m.Materialize(context.Background(), "..", strings.NewReader("data"))
	require.ErrorIs(t, err, errInvalidName)
}

func TestFileMaterializer_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	m := &FileMaterializer{Dir: dir}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Materialize(ctx, "a.bin", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
