package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketConfig locates an S3-compatible bucket. Prefix scopes the set, e.g.
// to one attempt of one job.
type BucketConfig struct {
	Endpoint string
	Region   string
	Bucket   string
	Prefix   string
	UseSSL   bool
	// Creds defaults to the standard AWS environment variables.
	Creds *credentials.Credentials
}

// Bucket is a set backed by objects under a prefix of an S3-compatible
// bucket. Remote execution environments upload the retrieved files there.
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewBucket connects to the bucket described by cfg.
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	creds := cfg.Creds
	if creds == nil {
		creds = credentials.NewEnvAWS()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Bucket{client: client, bucket: cfg.Bucket, prefix: cleanPrefix(cfg.Prefix)}, nil
}

// WithPrefix returns a set over a sub-prefix of b.
func (b *Bucket) WithPrefix(prefix string) *Bucket {
	c := *b
	c.prefix = cleanPrefix(b.prefix + prefix)
	return &c
}

func cleanPrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return path.Clean(p) + "/"
}

func (b *Bucket) key(name string) string {
	return b.prefix + strings.TrimLeft(name, "/")
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Open stats the object first because GetObject defers every request error
// to the first read.
func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := b.key(name)
	if _, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return obj, nil
}

func (b *Bucket) Names(ctx context.Context) ([]string, error) {
	var out []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(obj.Key, b.prefix))
	}
	sort.Strings(out)
	return out, nil
}

// Upload copies every artifact of src under the bucket's prefix.
func (b *Bucket) Upload(ctx context.Context, src Set) error {
	names, err := src.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := ReadAll(ctx, src, name)
		if err != nil {
			return err
		}
		_, err = b.client.PutObject(ctx, b.bucket, b.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
	}
	return nil
}
