package orchestrator

import (
	"context"
	"time"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/retry"
)

// downloadWithRetry wraps Downloader.Download with the download retry
// policy, short-circuiting when the failure is distinguishably
// non-transient (bad URL, unavailable format).
func downloadWithRetry(ctx context.Context, downloader ports.Downloader, opts model.DownloadOptions, destDir string, progressCb func(float64, string)) (string, error) {
	cfg := retry.DownloadQueueConfig()
	delay := cfg.Delay

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		path, err := downloader.Download(ctx, opts, destDir, progressCb)
		if err == nil {
			return path, nil
		}
		lastErr = err

		if dlErr, ok := pkgerrors.As[*pkgerrors.DownloadError](err); ok && !dlErr.Transient {
			return "", err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return "", lastErr
}
