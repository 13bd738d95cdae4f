package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider stores archives on the local filesystem: one .archive
// payload plus a .json metadata sidecar per archive.
type LocalProvider struct {
	root string
}

// NewLocalProvider creates a provider rooted at the configured path.
func NewLocalProvider(root string) (*LocalProvider, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create storage directory %s: %w", root, err)
	}
	return &LocalProvider{root: root}, nil
}

// Store writes the payload and its metadata sidecar.
func (p *LocalProvider) Store(ctx context.Context, archive *Archive) error {
	metadata, err := json.MarshalIndent(archive.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive metadata: %w", err)
	}
	if err := os.WriteFile(p.payloadPath(archive.Metadata.ID), archive.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive payload: %w", err)
	}
	if err := os.WriteFile(p.metadataPath(archive.Metadata.ID), metadata, 0o644); err != nil {
		return fmt.Errorf("failed to write archive metadata: %w", err)
	}
	return nil
}

// Retrieve reads an archive back.
func (p *LocalProvider) Retrieve(ctx context.Context, id string) (*Archive, error) {
	metadata, err := p.readMetadata(p.metadataPath(id))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.payloadPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive payload: %w", err)
	}
	return &Archive{Metadata: *metadata, Data: data}, nil
}

// Delete removes an archive and its sidecar.
func (p *LocalProvider) Delete(ctx context.Context, id string) error {
	if err := os.Remove(p.payloadPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive payload: %w", err)
	}
	if err := os.Remove(p.metadataPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive metadata: %w", err)
	}
	return nil
}

// List reads every metadata sidecar under the root.
func (p *LocalProvider) List(ctx context.Context) ([]*ArchiveMetadata, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}

	var archives []*ArchiveMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		metadata, err := p.readMetadata(filepath.Join(p.root, entry.Name()))
		if err != nil {
			continue // skip foreign files
		}
		archives = append(archives, metadata)
	}
	return archives, nil
}

func (p *LocalProvider) readMetadata(path string) (*ArchiveMetadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive metadata: %w", err)
	}
	var metadata ArchiveMetadata
	if err := json.Unmarshal(content, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse archive metadata: %w", err)
	}
	return &metadata, nil
}

func (p *LocalProvider) payloadPath(id string) string {
	return filepath.Join(p.root, id+".archive")
}

func (p *LocalProvider) metadataPath(id string) string {
	return filepath.Join(p.root, id+".json")
}
