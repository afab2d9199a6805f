// Package cloud holds the S3 client used to fetch raw inputs and publish
// reports.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client wraps S3 operations on one bucket.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates an S3 client for the given bucket.
func NewS3Client(ctx context.Context, bucket, region string) (*S3Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Client{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// Bucket returns the bucket the client operates on.
func (c *S3Client) Bucket() string { return c.bucket }

// Download streams the object at key into w.
func (c *S3Client) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("getting s3://%s/%s: %w", c.bucket, key, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("reading s3://%s/%s: %w", c.bucket, key, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("s3://%s/%s truncated: got %d of %d bytes", c.bucket, key, n, resp.ContentLength)
	}
	return n, nil
}

// UploadFile puts the file at localPath under key.
func (c *S3Client) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// IsS3URI reports whether s has the s3:// scheme.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseS3URI splits "s3://bucket/key" into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 URI %q needs a bucket and an object key", uri)
	}
	return bucket, key, nil
}

// ReportKey builds the object key for a report produced by run runID.
func ReportKey(prefix, runID, fileName string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, fileName)
}
