package fileapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/transfer"
)

// Protocol names accepted by NewProtocol.
const (
	ProtocolMultipart = "multipart"
	ProtocolChunk     = "chunk"
)

// NewProtocol returns the chunked upload protocol called name.
func NewProtocol(name string, c *Client) (transfer.UploadProtocol, error) {
	switch name {
	case ProtocolMultipart, "":
		return &MultipartProtocol{client: c}, nil
	case ProtocolChunk:
		return NewChunkProtocol(c), nil
	default:
		return nil, fmt.Errorf("unknown upload protocol %q", name)
	}
}

// MultipartProtocol is the server-assigned id flavour: the server hands out
// an uploadId on initiate and every part references it by 1-based part number.
type MultipartProtocol struct {
	client *Client
}

// NewMultipartProtocol returns a MultipartProtocol backed by c.
func NewMultipartProtocol(c *Client) *MultipartProtocol {
	return &MultipartProtocol{client: c}
}

type initiateResponse struct {
	UploadID string `json:"uploadId"`
}

// Initiate asks the server for an uploadId.
func (p *MultipartProtocol) Initiate(ctx context.Context, name string, _ int) (string, error) {
	u := p.client.endpoint("/v1/file/init", url.Values{"fileName": {name}})

	resp, err := p.client.postJSON(ctx, "initiate", u, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode initiate response: %w", err)
	}

	if out.UploadID == "" {
		return "", ErrMissingUploadID
	}

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "upload initiated", "upload_id", out.UploadID)

	return out.UploadID, nil
}

// UploadPart sends one part as multipart field "file".
func (p *MultipartProtocol) UploadPart(ctx context.Context, part transfer.Part) error {
	payload, contentType, err := encodeMultipart(nil, partFileName(part), part.Body)
	if err != nil {
		return fmt.Errorf("failed to encode part %d: %w", part.Number, err)
	}

	u := p.client.endpoint("/v1/file/part", url.Values{
		"fileName":   {part.Name},
		"uploadId":   {part.SessionID},
		"partNumber": {strconv.Itoa(part.Number)},
	})

	resp, err := p.client.post(ctx, "upload_part", u, contentType, payload, part.OnProgress)
	if err != nil {
		return err
	}

	return drain(resp)
}

// Complete asks the server to assemble the stored parts.
func (p *MultipartProtocol) Complete(ctx context.Context, name, sessionID string, _ int) error {
	u := p.client.endpoint("/v1/file/complete", url.Values{
		"fileName": {name},
		"uploadId": {sessionID},
	})

	resp, err := p.client.postJSON(ctx, "complete", u, nil)
	if err != nil {
		return err
	}

	return drain(resp)
}

// ChunkProtocol is the client-assigned id flavour: the fileId is generated
// locally and every chunk carries its 0-based index and the chunk count.
type ChunkProtocol struct {
	client *Client
	newID  func() string
}

// NewChunkProtocol returns a ChunkProtocol backed by c.
func NewChunkProtocol(c *Client) *ChunkProtocol {
	return &ChunkProtocol{client: c, newID: uuid.NewString}
}

// Initiate generates the fileId. No request is made.
func (p *ChunkProtocol) Initiate(ctx context.Context, name string, totalChunks int) (string, error) {
	id := p.newID()

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "file id assigned", "file_id", id, "total_chunks", totalChunks)

	return id, nil
}

// UploadPart sends one chunk together with its bookkeeping fields.
func (p *ChunkProtocol) UploadPart(ctx context.Context, part transfer.Part) error {
	fields := []formField{
		{name: "fileId", value: part.SessionID},
		{name: "chunkIndex", value: strconv.Itoa(part.Index)},
		{name: "totalChunks", value: strconv.Itoa(part.TotalChunks)},
	}

	payload, contentType, err := encodeMultipart(fields, partFileName(part), part.Body)
	if err != nil {
		return fmt.Errorf("failed to encode chunk %d: %w", part.Index, err)
	}

	resp, err := p.client.post(ctx, "upload_part", p.client.endpoint("/v1/file/upload/chunk", nil), contentType, payload, part.OnProgress)
	if err != nil {
		return err
	}

	return drain(resp)
}

type completeChunksRequest struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
}

// Complete asks the server to merge the chunks of sessionID.
func (p *ChunkProtocol) Complete(ctx context.Context, name, sessionID string, totalChunks int) error {
	resp, err := p.client.postJSON(ctx, "complete", p.client.endpoint("/v1/file/upload/chunk/complete", nil), completeChunksRequest{
		FileID:      sessionID,
		FileName:    name,
		TotalChunks: totalChunks,
	})
	if err != nil {
		return err
	}

	return drain(resp)
}

func partFileName(part transfer.Part) string {
	return fmt.Sprintf("%s.part%d", part.Name, part.Number)
}
