package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/kondee/pocsdcard/internal/downloader/progress"
	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/status"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/telemetry"
	"github.com/kondee/pocsdcard/internal/transfer"
)

const (
	dirPerm = 0755

	// ChunkSize is the size of each read from the response body.
	ChunkSize = 4 * 1024

	logInterval = 10 * 1024 * 1024 // 10MB
)

// ProgressFunc receives whole-percent download progress.
type ProgressFunc func(percent int)

// Downloader streams a remote file into the managed path under a storage root.
type Downloader struct {
	client    *http.Client
	layout    storage.Layout
	telemetry *telemetry.Telemetry
}

// NewDownloader builds a Downloader. A nil client gets one whose transport
// is instrumented by tel.
func NewDownloader(client *http.Client, layout storage.Layout, tel *telemetry.Telemetry) *Downloader {
	if client == nil {
		client = &http.Client{Transport: tel.Transport(http.DefaultTransport)}
	}

	return &Downloader{
		client:    client,
		layout:    layout,
		telemetry: tel,
	}
}

// Download fetches url into <root>/user_<id>/<book>/<file> and returns the
// absolute output path. An existing file is overwritten. A failed transfer
// leaves whatever was written in place.
func (d *Downloader) Download(ctx context.Context, url, root string, report ProgressFunc) (string, error) {
	var target string

	err := d.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error

		target, err = d.download(ctx, url, root, report)

		return err
	})
	if err != nil {
		return "", err
	}

	return target, nil
}

// fetch runs Download and folds the outcome into the terminal FileStatus.
func (d *Downloader) fetch(ctx context.Context, url, root string, report ProgressFunc) status.FileStatus {
	target, err := d.Download(ctx, url, root, report)
	if err != nil {
		return status.Error(err.Error())
	}

	return status.Downloaded(target)
}

func (d *Downloader) download(ctx context.Context, url, root string, report ProgressFunc) (string, error) {
	if url == "" {
		return "", &transfer.NetworkError{Operation: "build_request", Err: errors.New("empty url")}
	}

	if root == "" {
		return "", &transfer.FilesystemError{Operation: "resolve_root", Path: root, Err: errors.New("empty storage root")}
	}

	logger := logctx.LoggerFromContext(ctx).With("url", url)

	target, err := filepath.Abs(d.layout.File(root))
	if err != nil {
		return "", &transfer.FilesystemError{Operation: "resolve_path", Path: root, Err: err}
	}

	if err := d.ensureTargetDir(target, logger); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &transfer.NetworkError{Operation: "build_request", URL: url, Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &transfer.NetworkError{Operation: "open_stream", URL: url, Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &transfer.NetworkError{Operation: "open_stream", URL: url, StatusCode: resp.StatusCode}
	}

	if resp.Body == http.NoBody || resp.ContentLength == 0 || resp.StatusCode == http.StatusNoContent {
		logger.Warn("empty response body")

		return "", &transfer.EmptyResponseError{URL: url}
	}

	out, err := os.Create(target)
	if err != nil {
		return "", &transfer.FilesystemError{Operation: "create_file", Path: target, Err: err}
	}

	written, err := d.writeFile(ctx, out, resp.Body, url, target, resp.ContentLength, report)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = &transfer.FilesystemError{Operation: "close_file", Path: target, Err: closeErr}
	}

	if err != nil {
		return "", err
	}

	logger.Info("downloaded and saved file", "target", target, "size", humanize.Bytes(uint64(written)))

	return target, nil
}

func (d *Downloader) ensureTargetDir(targetPath string, logger *slog.Logger) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		logger.Error("failed to create target directory", "dir", dir, "err", err)

		return &transfer.FilesystemError{Operation: "create_dir", Path: dir, Err: err}
	}

	return nil
}

// writeFile copies the body in ChunkSize reads, writing each chunk before the
// next read. Progress is forwarded to report only when the length is known.
func (d *Downloader) writeFile(
	ctx context.Context,
	out io.Writer,
	body io.Reader,
	url, targetPath string,
	totalBytes int64,
	report ProgressFunc,
) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	if totalBytes > 0 {
		logger.Info("downloading file", "file_path", targetPath, "file_size", humanize.Bytes(uint64(totalBytes)))
	} else {
		logger.Info("downloading file", "file_path", targetPath, "file_size", "unknown")
	}

	progressCb := func(percent int, read int64) {
		if percent < 0 {
			logger.Debug("download progress", "url", url, "downloaded", humanize.Bytes(uint64(read)))

			return
		}

		logger.Debug("download progress",
			"url", url,
			"downloaded", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(totalBytes)),
			"percent", percent)

		if report != nil {
			report(percent)
		}
	}

	pr := progress.NewReader(body, totalBytes, logInterval, progressCb)
	buf := make([]byte, ChunkSize)

	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, &transfer.NetworkError{Operation: "read_stream", URL: url, Err: err}
		}

		n, readErr := pr.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, &transfer.FilesystemError{Operation: "write_file", Path: targetPath, Err: err}
			}

			written += int64(n)
			d.telemetry.RecordDownloadedBytes(int64(n))
		}

		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			}

			return written, &transfer.NetworkError{Operation: "read_stream", URL: url, Err: readErr}
		}
	}

	if written == 0 {
		return 0, &transfer.EmptyResponseError{URL: url}
	}

	return written, nil
}
