package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/gyeh/fraud-signals/internal/cloud"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/progress"
)

// ObjectStore reads objects from one bucket.
type ObjectStore interface {
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
}

// OpenStore returns a store for bucket.
type OpenStore func(ctx context.Context, bucket string) (ObjectStore, error)

// S3Stores opens real S3 buckets in region.
func S3Stores(region string) OpenStore {
	return func(ctx context.Context, bucket string) (ObjectStore, error) {
		return cloud.NewS3Client(ctx, bucket, region)
	}
}

// Fetcher resolves a source (local path, http(s) URL or s3 URI) to a local
// file. Remote sources are downloaded into TmpDir.
type Fetcher struct {
	TmpDir string
	Stores OpenStore
}

// Fetch returns a local path for src and a cleanup that removes anything the
// fetch downloaded.
func (f *Fetcher) Fetch(ctx context.Context, src string, tracker progress.Tracker) (string, func(), error) {
	noop := func() {}
	switch {
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		tracker.SetStage("downloading")
		p, err := downloadToFile(ctx, src, f.TmpDir, tracker.SetProgress)
		if err != nil {
			return "", noop, err
		}
		return p, func() { os.Remove(p) }, nil

	case cloud.IsS3URI(src):
		bucket, key, err := cloud.ParseS3URI(src)
		if err != nil {
			return "", noop, err
		}
		if f.Stores == nil {
			return "", noop, fmt.Errorf("%s: no object store configured", src)
		}
		store, err := f.Stores(ctx, bucket)
		if err != nil {
			return "", noop, err
		}
		tracker.SetStage("downloading")
		out, err := os.CreateTemp(f.TmpDir, "raw-*-"+path.Base(key))
		if err != nil {
			return "", noop, fmt.Errorf("creating temp file: %w", err)
		}
		_, err = store.Download(ctx, key, out)
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(out.Name())
			return "", noop, err
		}
		return out.Name(), func() { os.Remove(out.Name()) }, nil

	default:
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				return "", noop, fmt.Errorf("%w: %s", dataset.ErrMissingInput, src)
			}
			return "", noop, err
		}
		return src, noop, nil
	}
}
