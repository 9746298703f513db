package mirror

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage serves s3://bucket/prefix mirrors.
type S3Storage struct {
	client S3API
}

// NewS3Storage creates an S3Storage around client.
func NewS3Storage(client S3API) *S3Storage {
	return &S3Storage{client: client}
}

// NewS3StorageFromEnv loads the default AWS configuration chain. A custom
// endpoint (AWS_ENDPOINT_URL) switches the client to path-style addressing.
func NewS3StorageFromEnv(ctx context.Context) (*S3Storage, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Join(domain.ErrMirrorUnreachable, err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BaseEndpoint != nil
	})
	return NewS3Storage(client), nil
}

// Get downloads the object behind rawURL.
func (s *S3Storage) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error(err, rawURL)
	}
	return out.Body, nil
}

// Put uploads localPath to rawURL.
func (s *S3Storage) Put(ctx context.Context, localPath, rawURL string) error {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return err
	}

	//nolint:gosec // Source is a file produced by this process
	f, err := os.Open(localPath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", localPath)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", localPath)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return s3Error(err, rawURL)
	}
	return nil
}

// Exists issues a HeadObject for rawURL.
func (s *S3Storage) Exists(ctx context.Context, rawURL string) (bool, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, s3Error(err, rawURL)
	}
	return true, nil
}

// List pages through every key below prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, key, err := parseS3URL(prefix)
	if err != nil {
		return nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s3Error(err, prefix)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), key)
			if rel != "" {
				keys = append(keys, rel)
			}
		}
	}

	slices.Sort(keys)
	return keys, nil
}

// Delete removes the object behind rawURL.
func (s *S3Storage) Delete(ctx context.Context, rawURL string) error {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return s3Error(err, rawURL)
	}
	return nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", zerr.With(zerr.Wrap(domain.ErrUnsupportedScheme, "malformed s3 url"), "url", rawURL)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

func s3Error(err error, rawURL string) error {
	if isS3NotFound(err) {
		return zerr.With(zerr.Wrap(domain.ErrNotFound, "object missing"), "url", rawURL)
	}
	return zerr.With(errors.Join(domain.ErrMirrorUnreachable, err), "url", rawURL)
}
