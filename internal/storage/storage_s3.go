package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Provider stores archives in an Amazon S3 bucket.
type S3Provider struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Provider creates a provider over the configured bucket. Explicit
// credentials take precedence over the default credential chain.
func NewS3Provider(config Config) (*S3Provider, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsConfig := aws.NewConfig().WithRegion(config.Region)
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig = awsConfig.WithCredentials(
			credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""))
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Provider{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

// Store uploads the payload and its metadata object.
func (p *S3Provider) Store(ctx context.Context, archive *Archive) error {
	metadata, err := json.Marshal(archive.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal archive metadata: %w", err)
	}

	if _, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(archive.Metadata.ID, ".archive")),
		Body:   bytes.NewReader(archive.Data),
	}); err != nil {
		return fmt.Errorf("failed to upload archive payload: %w", err)
	}

	if _, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(archive.Metadata.ID, ".json")),
		Body:   bytes.NewReader(metadata),
	}); err != nil {
		return fmt.Errorf("failed to upload archive metadata: %w", err)
	}
	return nil
}

// Retrieve downloads an archive.
func (p *S3Provider) Retrieve(ctx context.Context, id string) (*Archive, error) {
	metadata, err := p.readMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	object, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(id, ".archive")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download archive payload: %w", err)
	}
	defer object.Body.Close()

	data, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive payload: %w", err)
	}
	return &Archive{Metadata: *metadata, Data: data}, nil
}

// Delete removes an archive and its metadata object.
func (p *S3Provider) Delete(ctx context.Context, id string) error {
	for _, suffix := range []string{".archive", ".json"} {
		if _, err := p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(p.key(id, suffix)),
		}); err != nil {
			return fmt.Errorf("failed to delete archive object: %w", err)
		}
	}
	return nil
}

// List walks the metadata objects under the prefix.
func (p *S3Provider) List(ctx context.Context) ([]*ArchiveMetadata, error) {
	var archives []*ArchiveMetadata
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix),
	}

	err := p.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				if !strings.HasSuffix(key, ".json") {
					continue
				}
				id := strings.TrimSuffix(strings.TrimPrefix(key, p.key("", "")), ".json")
				metadata, err := p.readMetadata(ctx, id)
				if err != nil {
					continue
				}
				archives = append(archives, metadata)
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	return archives, nil
}

func (p *S3Provider) readMetadata(ctx context.Context, id string) (*ArchiveMetadata, error) {
	object, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(id, ".json")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download archive metadata: %w", err)
	}
	defer object.Body.Close()

	content, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive metadata: %w", err)
	}
	var metadata ArchiveMetadata
	if err := json.Unmarshal(content, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse archive metadata: %w", err)
	}
	return &metadata, nil
}

func (p *S3Provider) key(id, suffix string) string {
	if p.prefix == "" {
		return id + suffix
	}
	return p.prefix + "/" + id + suffix
}
