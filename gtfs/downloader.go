package gtfs

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Downloader fetches the static GTFS resource archive and probes it for
// staleness without downloading.
type Downloader struct {
	resourceURL string
	httpClient  *http.Client
}

func NewDownloader(resourceURL string, timeout time.Duration) *Downloader {
	return &Downloader{
		resourceURL: resourceURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Probe issues a HEAD request and returns the resource's Last-Modified header.
func (d *Downloader) Probe(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.resourceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("staleness probe: HTTP %d from %s", resp.StatusCode, d.resourceURL)
	}
	return resp.Header.Get("Last-Modified"), nil
}

// Load downloads the archive into a temporary working directory, imports it
// and cleans the directory up again. The download itself is retried with
// exponential backoff before the load is declared failed.
func (d *Downloader) Load(ctx context.Context) (*Schedule, error) {
	workDir, err := os.MkdirTemp("", "siri-gtfsrt_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	var lastModified string
	download := func() error {
		var err error
		lastModified, err = d.fetchArchive(ctx, workDir)
		return err
	}
	retry := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(download, backoff.WithContext(retry, ctx)); err != nil {
		return nil, fmt.Errorf("downloading GTFS resource: %w", err)
	}

	schedule, err := ImportDirectory(workDir)
	if err != nil {
		return nil, err
	}
	schedule.LastModified = lastModified
	return schedule, nil
}

func (d *Downloader) fetchArchive(ctx context.Context, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.resourceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, d.resourceURL)
	}

	archive, err := os.CreateTemp("", "siri-gtfsrt-*.zip")
	if err != nil {
		return "", err
	}
	defer os.Remove(archive.Name())

	if _, err := io.Copy(archive, resp.Body); err != nil {
		archive.Close()
		return "", err
	}
	if err := archive.Close(); err != nil {
		return "", err
	}

	if err := extractTables(archive.Name(), dir); err != nil {
		return "", err
	}

	log.Debug().Str("url", d.resourceURL).Msg("Downloaded GTFS resource archive")
	return resp.Header.Get("Last-Modified"), nil
}

func extractTables(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || filepath.Ext(zf.Name) != ".txt" {
			continue
		}

		src, err := zf.Open()
		if err != nil {
			return err
		}
		// Nested archive paths are flattened; GTFS tables are top-level by
		// convention but some producers wrap them in a directory.
		dst, err := os.Create(filepath.Join(dir, filepath.Base(zf.Name)))
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
