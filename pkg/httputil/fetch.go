package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// DefaultTimeout bounds one download attempt.
const DefaultTimeout = 10 * time.Minute

// IsRemote reports whether input names an http or https resource.
func IsRemote(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// Downloader fetches remote files into a cache directory.
//
// Entries have a time-to-live based on file modification time. A TTL of 0
// means downloaded files never expire.
type Downloader struct {
	Client *http.Client
	dir    string
	ttl    time.Duration
}

// NewDownloader creates the cache directory if needed.
func NewDownloader(dir string, ttl time.Duration) (*Downloader, error) {
	if dir == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "download directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Downloader{
		Client: &http.Client{Timeout: DefaultTimeout},
		dir:    dir,
		ttl:    ttl,
	}, nil
}

// Dir returns the cache directory.
func (d *Downloader) Dir() string { return d.dir }

// Path returns where rawURL is stored. The file keeps the URL's extension
// so the store reader can tell a .zip archive apart.
func (d *Downloader) Path(rawURL string) string {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = path.Ext(u.Path)
	}
	return filepath.Join(d.dir, cache.Hash([]byte(rawURL))+ext)
}

// Fetch returns the local path of rawURL, downloading it unless a fresh
// copy is cached.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, bool, error) {
	if err := apperrors.ValidateURL(rawURL); err != nil {
		return "", false, err
	}
	if !IsRemote(rawURL) {
		return "", false, apperrors.New(apperrors.ErrCodeUnsupported, "cannot download %s", rawURL)
	}

	dst := d.Path(rawURL)
	if info, err := os.Stat(dst); err == nil {
		if d.ttl == 0 || time.Since(info.ModTime()) <= d.ttl {
			return dst, true, nil
		}
	}

	err := cache.RetryWithBackoff(ctx, func() error {
		return d.download(ctx, rawURL, dst)
	})
	if err != nil {
		return "", false, err
	}
	return dst, false, nil
}

func (d *Downloader) download(ctx context.Context, rawURL, dst string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "request %s", rawURL)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cache.Retryable(apperrors.Wrap(apperrors.ErrCodeNetwork, err, "get %s", rawURL))
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, rawURL); err != nil {
		return err
	}

	f, err := os.CreateTemp(d.dir, ".download-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cache.Retryable(apperrors.Wrap(apperrors.ErrCodeNetwork, err, "read %s", rawURL))
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return cache.Retryable(apperrors.New(apperrors.ErrCodeNetwork,
			"%s: got %d of %d bytes", rawURL, n, resp.ContentLength))
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), dst)
}

// checkStatus maps HTTP failures to coded errors. 5xx and 429 are
// retryable.
func checkStatus(resp *http.Response, rawURL string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.ErrCodeNotFound, "%s: not found", rawURL)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return cache.Retryable(apperrors.New(apperrors.ErrCodeNetwork, "%s: %s", rawURL, resp.Status))
	}
	return apperrors.New(apperrors.ErrCodeNetwork, "%s: unexpected status %s", rawURL, resp.Status)
}

// Clear removes every downloaded file and returns how many were removed.
func (d *Downloader) Clear() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
			return count, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		count++
	}
	return count, nil
}
