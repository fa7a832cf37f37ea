package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the storage surface the portal needs for archiving
// verified submission photos
type S3Client interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
}

type awsS3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Client builds an S3 client from the ambient AWS configuration
func NewS3Client(ctx context.Context, region string) (S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &awsS3Client{
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (c *awsS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

func (c *awsS3Client) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (c *awsS3Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

// GenerateArchiveKey builds the archive key for a verified photo
func GenerateArchiveKey(userID, taskType, filename string) string {
	return fmt.Sprintf("submissions/%s/%s/%d-%s", userID, taskType, time.Now().UTC().Unix(), filename)
}

// noopS3Client is used when archiving is disabled in configuration
type noopS3Client struct{}

// NewNoopS3Client returns a client that drops every operation
func NewNoopS3Client() S3Client {
	return &noopS3Client{}
}

func (c *noopS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	return nil
}

func (c *noopS3Client) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("photo archive is disabled")
}

func (c *noopS3Client) Delete(ctx context.Context, bucket, key string) error {
	return nil
}
