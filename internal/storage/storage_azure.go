package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureProvider stores archives in an Azure Blob Storage container.
type AzureProvider struct {
	container azblob.ContainerURL
	prefix    string
}

// NewAzureProvider creates a provider over the configured container.
func NewAzureProvider(config Config) (*AzureProvider, error) {
	if config.AccountName == "" || config.AccountKey == "" {
		return nil, fmt.Errorf("azure account name and key are required")
	}
	if config.Container == "" {
		return nil, fmt.Errorf("azure container is required")
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	endpoint, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s",
		config.AccountName, config.Container))
	if err != nil {
		return nil, fmt.Errorf("failed to build Azure endpoint: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	return &AzureProvider{
		container: azblob.NewContainerURL(*endpoint, pipeline),
		prefix:    strings.Trim(config.Prefix, "/"),
	}, nil
}

// Store uploads the payload and its metadata blob.
func (p *AzureProvider) Store(ctx context.Context, archive *Archive) error {
	metadata, err := json.Marshal(archive.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal archive metadata: %w", err)
	}

	payloadBlob := p.container.NewBlockBlobURL(p.blob(archive.Metadata.ID, ".archive"))
	if _, err := azblob.UploadBufferToBlockBlob(ctx, archive.Data, payloadBlob,
		azblob.UploadToBlockBlobOptions{}); err != nil {
		return fmt.Errorf("failed to upload archive payload: %w", err)
	}

	metadataBlob := p.container.NewBlockBlobURL(p.blob(archive.Metadata.ID, ".json"))
	if _, err := azblob.UploadBufferToBlockBlob(ctx, metadata, metadataBlob,
		azblob.UploadToBlockBlobOptions{}); err != nil {
		return fmt.Errorf("failed to upload archive metadata: %w", err)
	}
	return nil
}

// Retrieve downloads an archive.
func (p *AzureProvider) Retrieve(ctx context.Context, id string) (*Archive, error) {
	metadata, err := p.readMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := p.download(ctx, p.blob(id, ".archive"))
	if err != nil {
		return nil, fmt.Errorf("failed to download archive payload: %w", err)
	}
	return &Archive{Metadata: *metadata, Data: data}, nil
}

// Delete removes an archive and its metadata blob.
func (p *AzureProvider) Delete(ctx context.Context, id string) error {
	for _, suffix := range []string{".archive", ".json"} {
		blob := p.container.NewBlockBlobURL(p.blob(id, suffix))
		if _, err := blob.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
			if storageErr, ok := err.(azblob.StorageError); !ok ||
				storageErr.ServiceCode() != azblob.ServiceCodeBlobNotFound {
				return fmt.Errorf("failed to delete archive blob: %w", err)
			}
		}
	}
	return nil
}

// List walks the metadata blobs under the prefix.
func (p *AzureProvider) List(ctx context.Context) ([]*ArchiveMetadata, error) {
	var archives []*ArchiveMetadata
	marker := azblob.Marker{}
	for marker.NotDone() {
		page, err := p.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: p.prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list archives: %w", err)
		}
		for _, blob := range page.Segment.BlobItems {
			if !strings.HasSuffix(blob.Name, ".json") {
				continue
			}
			content, err := p.download(ctx, blob.Name)
			if err != nil {
				continue
			}
			var metadata ArchiveMetadata
			if err := json.Unmarshal(content, &metadata); err != nil {
				continue
			}
			archives = append(archives, &metadata)
		}
		marker = page.NextMarker
	}
	return archives, nil
}

func (p *AzureProvider) readMetadata(ctx context.Context, id string) (*ArchiveMetadata, error) {
	content, err := p.download(ctx, p.blob(id, ".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to download archive metadata: %w", err)
	}
	var metadata ArchiveMetadata
	if err := json.Unmarshal(content, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse archive metadata: %w", err)
	}
	return &metadata, nil
}

func (p *AzureProvider) download(ctx context.Context, name string) ([]byte, error) {
	blob := p.container.NewBlockBlobURL(name)
	response, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false,
		azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, err
	}
	body := response.Body(azblob.RetryReaderOptions{})
	defer body.Close()

	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(body); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (p *AzureProvider) blob(id, suffix string) string {
	if p.prefix == "" {
		return id + suffix
	}
	return p.prefix + "/" + id + suffix
}
