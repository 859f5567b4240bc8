// Package archive copies signed documents from the signature provider into
// an S3 bucket and hands out presigned download links for them.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/releasekeeper/internal/netx"
)

const (
	// LinkTTL is how long a presigned download link stays valid.
	LinkTTL = 15 * time.Minute

	maxFileSize = 32 << 20
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Config holds the bucket location and static credentials.
type Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

type Option func(*S3Archive)

// WithHTTPClient sets the client used to download from the provider.
func WithHTTPClient(c *http.Client) Option {
	return func(a *S3Archive) { a.http = c }
}

// S3Archive stores signed files under signed/<userId>/<requestId>/.
type S3Archive struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, opts ...Option) *S3Archive {
	a := &S3Archive{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ObjectKey returns a fresh object key for a request's signed file.
func ObjectKey(userID, requestID string) string {
	return fmt.Sprintf("signed/%s/%s/%v.pdf", userID, requestID, uuid.New())
}

func (a *S3Archive) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.cfg.AccessKey,
			a.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if a.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archive downloads sourceURL, uploads it to the bucket and returns a
// presigned GET link valid for LinkTTL.
func (a *S3Archive) Archive(ctx context.Context, userID, requestID, sourceURL string) (string, error) {
	body, err := a.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	client, err := a.getClient(ctx)
	if err != nil {
		return "", fmt.Errorf("s3 config: %w", err)
	}

	bucket := a.cfg.Bucket
	key := ObjectKey(userID, requestID)

	err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(LinkTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	return req.URL, nil
}

func (a *S3Archive) download(ctx context.Context, sourceURL string) ([]byte, error) {
	body, err := netx.Download(ctx, a.http, sourceURL, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return body, nil
}
