package transfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	DefaultChunkSize   = 5 * 1024 * 1024 // 5MiB
	DefaultConcurrency = 3
	DefaultMaxRetries  = DefaultMaxAttempts - 1
)

// Options configures an UploadSession.
type Options struct {
	// ChunkSize is the size of every part except possibly the last one.
	ChunkSize int64
	// Concurrency is the maximum number of parts in flight. 1 uploads parts
	// strictly in order.
	Concurrency int
	// MaxRetries is the number of re-attempts per part after the first failure.
	MaxRetries int
	// Window selects sliding or batched admission when Concurrency > 1.
	Window Window
}

// DefaultOptions returns 5MiB chunks, 3 parts in flight and 3 attempts per part.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   DefaultChunkSize,
		Concurrency: DefaultConcurrency,
		MaxRetries:  DefaultMaxRetries,
		Window:      WindowSliding,
	}
}

// Validate rejects options that would cause a division by zero or a run that
// never terminates.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return &InvalidConfigurationError{Field: "chunkSize", Reason: fmt.Sprintf("must be positive, got %d", o.ChunkSize)}
	}

	if o.Concurrency <= 0 {
		return &InvalidConfigurationError{Field: "concurrency", Reason: fmt.Sprintf("must be positive, got %d", o.Concurrency)}
	}

	if o.MaxRetries < 0 {
		return &InvalidConfigurationError{Field: "maxRetries", Reason: fmt.Sprintf("must not be negative, got %d", o.MaxRetries)}
	}

	if o.Window != WindowSliding && o.Window != WindowBatched {
		return &InvalidConfigurationError{Field: "window", Reason: fmt.Sprintf("unknown window %d", o.Window)}
	}

	return nil
}

func (o Options) progressMode() ProgressMode {
	if o.Concurrency == 1 {
		return ProgressSequential
	}

	return ProgressParallel
}

// Source is a file to upload. Parts are read through ReaderAt so concurrent
// parts and retries never share a read offset.
type Source struct {
	Name   string
	Size   int64
	Reader io.ReaderAt
}

// FileSource describes an open file as a Source named after its base name.
func FileSource(f *os.File) (Source, error) {
	info, err := f.Stat()
	if err != nil {
		return Source{}, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", f.Name())
	}

	return Source{
		Name:   filepath.Base(f.Name()),
		Size:   info.Size(),
		Reader: f,
	}, nil
}
