package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/clipforge/clipforge/internal/fileutils"
)

// fetch downloads url to path, streaming to disk.
// Downloads larger than maxBytes are aborted.
func fetch(ctx context.Context, client *http.Client, url, path string, maxBytes int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid source URL: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download source video: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to download source video: unexpected status %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}

	written, err := fileutils.CopyStream(path, body)
	if err != nil {
		return err
	}

	if maxBytes > 0 && written > maxBytes {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("source video exceeds %d bytes, and cleanup failed: %v", maxBytes, err)
		}
		return fmt.Errorf("source video exceeds %d bytes", maxBytes)
	}

	return nil
}
