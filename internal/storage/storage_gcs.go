package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSProvider stores archives in a Google Cloud Storage bucket.
type GCSProvider struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSProvider creates a provider over the configured bucket. A
// credentials file overrides application default credentials.
func NewGCSProvider(ctx context.Context, config Config) (*GCSProvider, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSProvider{
		client: client,
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

// Store uploads the payload and its metadata object.
func (p *GCSProvider) Store(ctx context.Context, archive *Archive) error {
	metadata, err := json.Marshal(archive.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal archive metadata: %w", err)
	}

	if err := p.write(ctx, p.object(archive.Metadata.ID, ".archive"), archive.Data); err != nil {
		return fmt.Errorf("failed to upload archive payload: %w", err)
	}
	if err := p.write(ctx, p.object(archive.Metadata.ID, ".json"), metadata); err != nil {
		return fmt.Errorf("failed to upload archive metadata: %w", err)
	}
	return nil
}

// Retrieve downloads an archive.
func (p *GCSProvider) Retrieve(ctx context.Context, id string) (*Archive, error) {
	metadata, err := p.readMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := p.read(ctx, p.object(id, ".archive"))
	if err != nil {
		return nil, fmt.Errorf("failed to download archive payload: %w", err)
	}
	return &Archive{Metadata: *metadata, Data: data}, nil
}

// Delete removes an archive and its metadata object.
func (p *GCSProvider) Delete(ctx context.Context, id string) error {
	bucket := p.client.Bucket(p.bucket)
	for _, suffix := range []string{".archive", ".json"} {
		if err := bucket.Object(p.object(id, suffix)).Delete(ctx); err != nil && err != gcs.ErrObjectNotExist {
			return fmt.Errorf("failed to delete archive object: %w", err)
		}
	}
	return nil
}

// List walks the metadata objects under the prefix.
func (p *GCSProvider) List(ctx context.Context) ([]*ArchiveMetadata, error) {
	var archives []*ArchiveMetadata
	objects := p.client.Bucket(p.bucket).Objects(ctx, &gcs.Query{Prefix: p.prefix})
	for {
		attrs, err := objects.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list archives: %w", err)
		}
		if !strings.HasSuffix(attrs.Name, ".json") {
			continue
		}
		content, err := p.read(ctx, attrs.Name)
		if err != nil {
			continue
		}
		var metadata ArchiveMetadata
		if err := json.Unmarshal(content, &metadata); err != nil {
			continue
		}
		archives = append(archives, &metadata)
	}
	return archives, nil
}

func (p *GCSProvider) readMetadata(ctx context.Context, id string) (*ArchiveMetadata, error) {
	content, err := p.read(ctx, p.object(id, ".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to download archive metadata: %w", err)
	}
	var metadata ArchiveMetadata
	if err := json.Unmarshal(content, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse archive metadata: %w", err)
	}
	return &metadata, nil
}

func (p *GCSProvider) write(ctx context.Context, name string, data []byte) error {
	writer := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func (p *GCSProvider) read(ctx context.Context, name string) ([]byte, error) {
	reader, err := p.client.Bucket(p.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (p *GCSProvider) object(id, suffix string) string {
	if p.prefix == "" {
		return id + suffix
	}
	return p.prefix + "/" + id + suffix
}
