package fileapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/italolelis/chunk_transfer/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPart struct {
	query  map[string]string
	fields map[string]string
	data   []byte
	header http.Header
}

type fakeServer struct {
	mu    sync.Mutex
	parts []recordedPart
	paths []string
	json  []byte
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.paths = append(f.paths, r.URL.Path)

		switch r.URL.Path {
		case "/v1/file/init":
			_ = json.NewEncoder(w).Encode(map[string]string{"uploadId": "up-" + r.URL.Query().Get("fileName")})
		case "/v1/file/part", "/v1/file/upload/chunk", "/v1/file/upload":
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				w.WriteHeader(http.StatusBadRequest)

				return
			}

			file, _, err := r.FormFile("file")
			require.NoError(t, err)

			data, err := io.ReadAll(file)
			require.NoError(t, err)

			rec := recordedPart{
				query:  map[string]string{},
				fields: map[string]string{},
				data:   data,
				header: r.Header.Clone(),
			}

			for k := range r.URL.Query() {
				rec.query[k] = r.URL.Query().Get(k)
			}

			for k, v := range r.MultipartForm.Value {
				rec.fields[k] = v[0]
			}

			f.parts = append(f.parts, rec)
		case "/v1/file/complete":
		case "/v1/file/upload/chunk/complete":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			f.json = body
		case "/v1/file/download":
			if r.URL.Query().Get("fileName") != "movie.mkv" {
				http.Error(w, "no such file", http.StatusNotFound)

				return
			}

			_, _ = w.Write([]byte("hello world"))
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()

	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	return NewClient(srv.URL + "/")
}

func TestMultipartProtocol_RoundTrip(t *testing.T) {
	f := &fakeServer{}
	p := NewMultipartProtocol(newTestClient(t, f))
	ctx := context.Background()

	id, err := p.Initiate(ctx, "a.bin", 2)
	require.NoError(t, err)
	assert.Equal(t, "up-a.bin", id)

	var (
		mu       sync.Mutex
		reported []int64
	)

	err = p.UploadPart(ctx, transfer.Part{
		SessionID: id,
		Name:      "a.bin",
		Index:     1,
		Number:    2,
		Body:      strings.NewReader("payload"),
		OnProgress: func(sent, total int64) {
			mu.Lock()
			reported = append(reported, sent)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.NoError(t, p.Complete(ctx, "a.bin", id, 2))

	require.Len(t, f.parts, 1)
	assert.Equal(t, []byte("payload"), f.parts[0].data)
	assert.Equal(t, "a.bin", f.parts[0].query["fileName"])
	assert.Equal(t, "up-a.bin", f.parts[0].query["uploadId"])
	assert.Equal(t, "2", f.parts[0].query["partNumber"])
	assert.NotEmpty(t, f.parts[0].header.Get("X-Request-ID"))
	mu.Lock()
	assert.NotEmpty(t, reported)
	mu.Unlock()
	assert.Equal(t, []string{"/v1/file/init", "/v1/file/part", "/v1/file/complete"}, f.paths)
}

func TestMultipartProtocol_InitiateMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewMultipartProtocol(NewClient(srv.URL)).Initiate(context.Background(), "a.bin", 1)
	require.ErrorIs(t, err, ErrMissingUploadID)
}

func TestChunkProtocol_RoundTrip(t *testing.T) {
	f := &fakeServer{}
	p := NewChunkProtocol(newTestClient(t, f))
	p.newID = func() string { return "file-123" }
	ctx := context.Background()

	id, err := p.Initiate(ctx, "b.bin", 3)
	require.NoError(t, err)
	assert.Equal(t, "file-123", id)
	assert.Empty(t, f.paths, "initiate must not hit the server")

	err = p.UploadPart(ctx, transfer.Part{
		SessionID:   id,
		Name:        "b.bin",
		Index:       2,
		Number:      3,
		TotalChunks: 3,
		Body:        bytes.NewReader([]byte{1, 2, 3}),
	})
	require.NoError(t, err)

	require.NoError(t, p.Complete(ctx, "b.bin", id, 3))

	require.Len(t, f.parts, 1)
	assert.Equal(t, map[string]string{"fileId": "file-123", "chunkIndex": "2", "totalChunks": "3"}, f.parts[0].fields)
	assert.JSONEq(t, `{"fileId":"file-123","fileName":"b.bin","totalChunks":3}`, string(f.json))
}

func TestClient_UploadFile(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f)

	require.NoError(t, c.UploadFile(context.Background(), "c.txt", strings.NewReader("whole"), 5, nil))

	require.Len(t, f.parts, 1)
	assert.Equal(t, []byte("whole"), f.parts[0].data)
	assert.Equal(t, []string{"/v1/file/upload"}, f.paths)
}

func TestClient_Download(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f)

	body, size, err := c.Download(context.Background(), "movie.mkv")
	require.NoError(t, err)

	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(len("hello world")), size)
}

func TestClient_DownloadNotFound(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f)

	_, _, err := c.Download(context.Background(), "missing.mkv")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "download", statusErr.Operation)
	assert.Equal(t, "no such file", statusErr.Body)
}

func TestClient_NonSuccessIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewMultipartProtocol(NewClient(srv.URL))

	err := p.UploadPart(context.Background(), transfer.Part{Name: "a", Number: 1, Body: strings.NewReader("x")})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "upload_part", statusErr.Operation)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestNewHTTPClient_BearerToken(t *testing.T) {
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(NewHTTPClient("secret", 0)))

	require.NoError(t, NewMultipartProtocol(c).Complete(context.Background(), "a", "id", 1))
	assert.Equal(t, "Bearer secret", auth)
}

func TestNewProtocol(t *testing.T) {
	c := NewClient("http://localhost")

	p, err := NewProtocol("", c)
	require.NoError(t, err)
	assert.IsType(t, &MultipartProtocol{}, p)

	p, err = NewProtocol(ProtocolChunk, c)
	require.NoError(t, err)
	assert.IsType(t, &ChunkProtocol{}, p)

	_, err = NewProtocol("ftp", c)
	require.Error(t, err)
}
