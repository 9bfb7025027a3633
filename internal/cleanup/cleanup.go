package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/storage"
)

// PruneHistory deletes journal records that finished more than keepFor ago.
func PruneHistory(ctx context.Context, repo storage.TransferWriteRepository, keepFor time.Duration) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	if keepFor <= 0 {
		return 0, nil
	}

	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(-keepFor))
	if err != nil {
		logger.ErrorContext(ctx, "failed to prune transfer history", "err", err)

		return 0, fmt.Errorf("failed to prune transfer history: %w", err)
	}

	if deleted > 0 {
		logger.InfoContext(ctx, "pruned transfer history", "deleted", deleted, "keep_for", keepFor)
	}

	return deleted, nil
}

// RemoveStalePartials deletes temporary download files ("."+name+".*.part")
// left in dir by a process that was killed mid-download. Only files not
// modified for olderThan are touched so a concurrent download is left alone.
func RemoveStalePartials(ctx context.Context, dir string, olderThan time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".part") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // already gone
			}

			return err
		}

		if now.Sub(info.ModTime()) <= olderThan {
			continue
		}

		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.ErrorContext(ctx, "failed to delete stale partial file", "file", path, "err", err)

			return err
		}

		logger.InfoContext(ctx, "deleted stale partial file", "file", path, "file_size", humanize.IBytes(uint64(info.Size())))
	}

	return nil
}
