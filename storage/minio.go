package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"benirage/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStore implements ObjectStore on top of a MinIO/S3 bucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	region  string
	baseURL string
}

// NewMinioStore creates the MinIO client. It does not contact the server; see EnsureBucket.
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	baseURL := strings.TrimRight(opts.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + opts.Bucket
	}

	return &MinioStore{
		client:  client,
		bucket:  opts.Bucket,
		region:  opts.Region,
		baseURL: baseURL,
	}, nil
}

// Bucket returns the bucket name.
func (m *MinioStore) Bucket() string {
	return m.bucket
}

// EnsureBucket checks connectivity and creates the bucket when missing.
func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		logger.Info("media bucket ready", logger.String("bucket", m.bucket))
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	logger.Info("media bucket created", logger.String("bucket", m.bucket))
	return nil
}

// PutObject uploads r to path. With Upsert disabled an existing object is
// reported as ErrObjectExists instead of being overwritten.
func (m *MinioStore) PutObject(ctx context.Context, path string, r io.Reader, size int64, opts PutOptions) error {
	if !opts.Upsert {
		exists, err := m.exists(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrObjectExists, path)
		}
	}

	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: cacheControlHeader(opts.CacheControl),
		UserMetadata: opts.Metadata,
	}
	if opts.Progress != nil {
		putOpts.Progress = &progressHook{fn: opts.Progress}
	}

	if _, err := m.client.PutObject(ctx, m.bucket, path, r, size, putOpts); err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (m *MinioStore) exists(ctx context.Context, path string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, path, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", path, err)
}

// PublicURL joins the public base URL and the object path.
func (m *MinioStore) PublicURL(path string) string {
	if path == "" || m.baseURL == "" {
		return ""
	}
	return m.baseURL + "/" + strings.TrimLeft(path, "/")
}

// DeleteObject removes path. Deleting a missing object is not an error.
func (m *MinioStore) DeleteObject(ctx context.Context, path string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", path, err)
	}
	return nil
}

// ListObjects lists every object under prefix, recursively.
func (m *MinioStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, object.Err)
		}
		objects = append(objects, ObjectInfo{
			Path:         object.Key,
			Size:         object.Size,
			ContentType:  object.ContentType,
			LastModified: object.LastModified,
			Metadata:     object.UserMetadata,
		})
	}
	return objects, nil
}

// DeletePrefix removes every object under prefix in one batch and returns the count.
func (m *MinioStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, err := m.ListObjects(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("prefix %s is empty or does not exist", prefix)
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	go func() {
		defer close(objectsCh)
		for _, obj := range objects {
			objectsCh <- minio.ObjectInfo{Key: obj.Path}
		}
	}()

	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return 0, fmt.Errorf("remove object %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return len(objects), nil
}

// cacheControlHeader accepts either a bare max-age in seconds or a full header value.
func cacheControlHeader(v string) string {
	if v == "" {
		return ""
	}
	if strings.ContainsAny(v, "=,") {
		return v
	}
	return "max-age=" + v
}

// progressHook adapts minio's progress reader contract: minio reads as many
// bytes from it as it has just sent.
type progressHook struct {
	sent int64
	fn   ProgressFunc
}

func (p *progressHook) Read(b []byte) (int, error) {
	p.sent += int64(len(b))
	p.fn(p.sent)
	return len(b), nil
}
