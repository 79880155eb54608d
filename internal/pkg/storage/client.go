// Package storage stores subscription attachments in an S3 bucket, one
// folder per (citizen, subscription) pair.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// File is one attachment travelling through the upload pipeline: a user
// upload or a generated invoice PDF. ProofType is the form field the file
// arrived under ("invoice" for generated ones).
type File struct {
	Name      string
	Body      []byte
	MimeType  string
	ProofType string
}

// Client wraps the S3 client with attachment-specific functionality
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new attachment storage client
func NewClient(cfg *Config) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Storage] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// testConnection tests the S3 connection by checking if the bucket exists
func (c *Client) testConnection() error {
	ctx := context.Background()

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err != nil {
		// If bucket doesn't exist, try to create it (for development)
		if GetAppEnv() != "prod" {
			log.Warnf("[Storage] Bucket %s not found, attempting to create it", c.config.BucketName)
			return c.createBucket(c.config.BucketName)
		}
		return fmt.Errorf("bucket %s not accessible: %w", c.config.BucketName, err)
	}

	return nil
}

// createBucket creates a new S3 bucket (dev/staging only)
func (c *Client) createBucket(bucketName string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}

	_, err := c.s3Client.CreateBucket(context.Background(), input)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Infof("[Storage] Successfully created bucket: %s", bucketName)
	return nil
}

func objectKey(citizenID, subscriptionID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", citizenID, subscriptionID, filename)
}

// UploadFileList uploads one batch of attachments under the subscription's
// folder
func (c *Client) UploadFileList(ctx context.Context, citizenID, subscriptionID string, files []File) error {
	for _, file := range files {
		_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.config.BucketName),
			Key:         aws.String(objectKey(citizenID, subscriptionID, file.Name)),
			Body:        bytes.NewReader(file.Body),
			ContentType: aws.String(file.MimeType),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", file.Name, err)
		}
	}
	log.Infof("[Storage] Uploaded %d file(s) for subscription %s", len(files), subscriptionID)
	return nil
}

// DownloadFileBuffer fetches one attachment body
func (c *Client) DownloadFileBuffer(ctx context.Context, citizenID, subscriptionID, filename string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(objectKey(citizenID, subscriptionID, filename)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", filename, err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return body, nil
}

// DeleteObjectFolder removes every attachment of a subscription
func (c *Client) DeleteObjectFolder(ctx context.Context, citizenID, subscriptionID string) error {
	prefix := fmt.Sprintf("%s/%s/", citizenID, subscriptionID)

	list, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.BucketName),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to list folder %s: %w", prefix, err)
	}
	if len(list.Contents) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(list.Contents))
	for _, object := range list.Contents {
		objects = append(objects, types.ObjectIdentifier{Key: object.Key})
	}
	_, err = c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(c.config.BucketName),
		Delete: &types.Delete{Objects: objects},
	})
	if err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", prefix, err)
	}

	log.Infof("[Storage] Deleted %d object(s) for subscription %s", len(objects), subscriptionID)
	return nil
}
