package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"

	"busview.transitireland.org/internal/logging"
)

// Archive exposes the fixed-name resources of a fetched reference archive as
// byte streams. Close releases whatever backs the archive.
type Archive interface {
	Open(name string) (io.ReadCloser, error)
	Close() error
}

// ReferenceFetcher retrieves the static reference archive.
type ReferenceFetcher interface {
	Fetch(ctx context.Context) (Archive, error)
}

// HTTPReferenceFetcher downloads the reference archive over HTTPS. In
// low-memory mode the archive is spooled to a temporary file instead of
// being buffered in memory; the file is removed when the archive is closed.
type HTTPReferenceFetcher struct {
	url       string
	client    *http.Client
	lowMemory bool
	logger    *slog.Logger
}

func NewHTTPReferenceFetcher(url string, client *http.Client, lowMemory bool, logger *slog.Logger) *HTTPReferenceFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReferenceFetcher{
		url:       url,
		client:    client,
		lowMemory: lowMemory,
		logger:    logger,
	}
}

func (f *HTTPReferenceFetcher) Fetch(ctx context.Context) (Archive, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading reference archive: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, f.logger, "reference_archive_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference archive download failed: HTTP %d", resp.StatusCode)
	}

	if f.lowMemory {
		return spoolToFile(resp.Body)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading reference archive: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("error opening reference archive: %w", err)
	}
	return &zipArchive{reader: zr}, nil
}

func spoolToFile(body io.Reader) (Archive, error) {
	tmp, err := os.CreateTemp("", "busview-reference-*.zip")
	if err != nil {
		return nil, fmt.Errorf("error creating spool file: %w", err)
	}

	size, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("error spooling reference archive: %w", err)
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("error opening reference archive: %w", err)
	}
	return &zipArchive{
		reader: zr,
		cleanup: func() error {
			err := tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && err == nil {
				err = rmErr
			}
			return err
		},
	}, nil
}

// zipArchive resolves resources by base name, so nested paths inside the
// archive do not matter.
type zipArchive struct {
	reader  *zip.Reader
	cleanup func() error
}

func (a *zipArchive) Open(name string) (io.ReadCloser, error) {
	for _, f := range a.reader.File {
		if path.Base(f.Name) == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("resource %q not found in reference archive", name)
}

func (a *zipArchive) Close() error {
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
