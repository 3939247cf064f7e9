package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const contentType = "audio/ogg"

// S3API is the part of the S3 client a Bucket uses. *s3.Client satisfies
// it.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// BucketConfig describes an S3 or S3-compatible bucket.
type BucketConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// NewS3Client builds an S3 client from cfg. A custom endpoint switches to
// path-style addressing for MinIO and similar servers.
func NewS3Client(cfg BucketConfig) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{Region: region}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	if cfg.AccessKey != "" {
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKey, SecretAccessKey: cfg.SecretKey}, nil
		})
	}
	return s3.New(opts)
}

// Bucket stores recordings as objects under an optional key prefix.
type Bucket struct {
	api    S3API
	bucket string
	prefix string
}

// NewBucket returns a Bucket over api.
func NewBucket(api S3API, bucket, prefix string) *Bucket {
	return &Bucket{api: api, bucket: bucket, prefix: prefix}
}

func (b *Bucket) key(name string) (*string, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if b.prefix == "" {
		return aws.String(name), nil
	}
	return aws.String(b.prefix + "/" + name), nil
}

// Create uploads through a pipe; Close on the writer waits for PutObject.
func (b *Bucket) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	key, err := b.key(name)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	u := &upload{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		_, u.err = b.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         key,
			Body:        pr,
			ContentType: aws.String(contentType),
		})
		pr.CloseWithError(u.err)
	}()
	return u, nil
}

func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := b.key(name)
	if err != nil {
		return nil, err
	}
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: key})
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("recording: %s: %w", name, fs.ErrNotExist)
		}
		return nil, err
	}
	return out.Body, nil
}

func (b *Bucket) Remove(ctx context.Context, name string) error {
	key, err := b.key(name)
	if err != nil {
		return err
	}
	_, err = b.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: key})
	return err
}

func (b *Bucket) Exists(ctx context.Context, name string) (bool, error) {
	key, err := b.key(name)
	if err != nil {
		return false, err
	}
	if _, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: key}); err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type upload struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func (u *upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *upload) Close() error {
	u.pw.Close()
	<-u.done
	return u.err
}

func notFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

var _ Store = (*Bucket)(nil)
