package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/logctx"
)

const dirPerm = 0755

var errInvalidName = errors.New("invalid file name")

func errShortBody(read, declared int64) error {
	return fmt.Errorf("stream ended after %d of %d declared bytes", read, declared)
}

// FileMaterializer writes downloads into Dir. Data goes to a temporary file
// that is renamed into place only after the whole stream was copied, so a
// failed download never leaves a partial file under the final name.
type FileMaterializer struct {
	Dir string
}

// Materialize implements Materializer.
func (m *FileMaterializer) Materialize(ctx context.Context, name string, r io.Reader) error {
	logger := logctx.LoggerFromContext(ctx)

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return fmt.Errorf("%w: %q", errInvalidName, name)
	}

	if err := os.MkdirAll(m.Dir, dirPerm); err != nil {
		logger.ErrorContext(ctx, "failed to create target directory", "dir", m.Dir, "err", err)

		return fmt.Errorf("failed to create target directory: %w", err)
	}

	tmp, err := os.CreateTemp(m.Dir, "."+base+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	target := filepath.Join(m.Dir, base)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	committed = true

	logger.InfoContext(ctx, "saved file", "target", target, "file_size", humanize.IBytes(uint64(written)))

	return nil
}
