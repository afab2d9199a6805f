package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	},
	Timeout: 3 * time.Hour, // the spending parquet is several GB
}

// retryBase is the first backoff between download attempts.
var retryBase = time.Second

// DownloadHTTP performs an HTTP GET with retries and returns the response.
// Caller is responsible for closing resp.Body.
func DownloadHTTP(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * retryBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("creating request: %w", reqErr)
		}

		resp, err = httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		resp.Body.Close()
		err = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, err // don't retry client errors
		}
	}

	return nil, fmt.Errorf("download failed after retries: %w", err)
}

// downloadToFile writes the body of url to a new file in dir and returns its
// path. onProgress is called with (bytesDownloaded, totalBytes).
func downloadToFile(ctx context.Context, url, dir string, onProgress func(downloaded, total int64)) (string, error) {
	resp, err := DownloadHTTP(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	totalBytes := resp.ContentLength
	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{reader: resp.Body, total: totalBytes, callback: onProgress}
	}
	counter := &countingReader{reader: reader}

	f, err := os.CreateTemp(dir, "raw-*-"+FileNameFromURL(url))
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	_, err = io.Copy(f, counter)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil && totalBytes > 0 && counter.n != totalBytes {
		err = fmt.Errorf("download truncated: got %d of %d bytes", counter.n, totalBytes)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	return f.Name(), nil
}

// NewGzipReader returns a parallel gzip decompressor over r.
func NewGzipReader(r io.Reader) (io.ReadCloser, error) {
	return pgzip.NewReader(r)
}

// FileNameFromURL extracts the file name from a URL, ignoring the query.
func FileNameFromURL(url string) string {
	p, _, _ := strings.Cut(url, "?")
	return path.Base(p)
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.n += int64(n)
	return n, err
}

type progressReader struct {
	reader     io.Reader
	downloaded int64
	total      int64
	callback   func(downloaded, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		pr.callback(pr.downloaded, pr.total)
	}
	return n, err
}
