// Package httputil downloads remote cell stores into a local cache.
//
// Xenium bundles are often kept on object storage behind plain HTTPS. A
// [Downloader] fetches such a file once, keeps it under a cache directory
// named by the SHA-256 of its URL, and hands back the local path so the
// store reader can open it like any other file.
//
// Transient failures (network errors, 5xx and 429 responses) are retried
// with exponential backoff; other statuses fail immediately. Downloads are
// written to a temporary file and renamed into place, so a cancelled
// transfer never leaves a truncated store behind.
//
//	d, err := httputil.NewDownloader(cacheDir, 24*time.Hour)
//	path, cached, err := d.Fetch(ctx, "https://example.org/cells.zarr.zip")
package httputil
