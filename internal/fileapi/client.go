package fileapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/progress"
	"github.com/italolelis/chunk_transfer/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	DefaultRegularUploadPath = "/v1/file/upload"

	// uploadReportInterval throttles request body progress callbacks.
	uploadReportInterval = 64 * 1024
	maxErrorBody         = 1024
)

// Client talks to the remote file API.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	regularUploadPath string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRegularUploadPath overrides the path used for non-chunked uploads.
func WithRegularUploadPath(path string) Option {
	return func(c *Client) {
		c.regularUploadPath = path
	}
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		httpClient:        NewHTTPClient("", 0),
		regularUploadPath: DefaultRegularUploadPath,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewHTTPClient builds an HTTP client that traces requests, tags them with an
// X-Request-ID and, when token is set, authenticates with a bearer token.
// headerTimeout bounds the wait for response headers only, so long bodies are
// never cut off; 0 disables it.
func NewHTTPClient(token string, headerTimeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = headerTimeout

	var rt http.RoundTripper = otelhttp.NewTransport(&telemetry.RequestIDTransport{Base: base})

	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   rt,
		}
	}

	return &http.Client{Transport: rt}
}

// UploadFile sends the whole file as multipart field "file" in one request.
func (c *Client) UploadFile(ctx context.Context, name string, body io.Reader, size int64, onProgress func(sent, total int64)) error {
	payload, contentType, err := encodeMultipart(nil, name, body)
	if err != nil {
		return fmt.Errorf("failed to encode upload body: %w", err)
	}

	resp, err := c.post(ctx, "regular_upload", c.endpoint(c.regularUploadPath, nil), contentType, payload, onProgress)
	if err != nil {
		return err
	}

	return drain(resp)
}

// Download starts a streamed GET of name. size is -1 when the server does not
// declare a Content-Length. The caller must close body.
func (c *Client) Download(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	u := c.endpoint("/v1/file/download", url.Values{"fileName": {name}})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "failed to download file", "err", err)

		return nil, 0, fmt.Errorf("failed to download file: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, 0, newStatusError("download", resp)
	}

	return resp.Body, resp.ContentLength, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

func (c *Client) post(ctx context.Context, op, u, contentType string, payload []byte, onProgress func(sent, total int64)) (*http.Response, error) {
	var body io.Reader = bytes.NewReader(payload)
	if onProgress != nil {
		body = progress.NewReader(body, int64(len(payload)), uploadReportInterval, onProgress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.ContentLength = int64(len(payload))

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()

		return nil, newStatusError(op, resp)
	}

	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, op, u string, in any) (*http.Response, error) {
	var payload []byte

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}

		payload = b
	}

	contentType := ""
	if in != nil {
		contentType = "application/json"
	}

	return c.post(ctx, op, u, contentType, payload, nil)
}

type formField struct {
	name  string
	value string
}

// encodeMultipart writes fields followed by the "file" part. The whole body is
// buffered so a retried attempt can be re-sent and its length is known.
func encodeMultipart(fields []formField, fileName string, file io.Reader) ([]byte, string, error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	fw, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", err
	}

	if _, err := io.Copy(fw, file); err != nil {
		return nil, "", fmt.Errorf("failed to read file data: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

func drain(resp *http.Response) error {
	defer resp.Body.Close()

	_, err := io.Copy(io.Discard, resp.Body)

	return err
}
