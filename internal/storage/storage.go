// Package storage keeps off-box copies of generated migration folders. A
// migration's up/down pair is packed into a tar archive, optionally
// compressed and encrypted, and pushed to a configured backend (local
// filesystem, Amazon S3, Google Cloud Storage or Azure Blob Storage).
package storage

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lofcz/minfold/internal/logging"
)

// ProviderType selects a storage backend.
type ProviderType string

const (
	ProviderLocal ProviderType = "local"
	ProviderS3    ProviderType = "s3"
	ProviderGCS   ProviderType = "gcs"
	ProviderAzure ProviderType = "azure"
)

// Config holds archive storage configuration.
type Config struct {
	Provider    ProviderType    `mapstructure:"provider" yaml:"provider"`
	Compression CompressionType `mapstructure:"compression" yaml:"compression"`
	Passphrase  string          `mapstructure:"passphrase" yaml:"passphrase"`

	// Local
	Path string `mapstructure:"path" yaml:"path"`

	// S3
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	// GCS
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// Azure
	AccountName string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey  string `mapstructure:"account_key" yaml:"account_key"`
	Container   string `mapstructure:"container" yaml:"container"`

	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// ArchiveMetadata describes one stored archive.
type ArchiveMetadata struct {
	ID            string          `json:"id"`
	MigrationName string          `json:"migration_name"`
	CreatedAt     time.Time       `json:"created_at"`
	Size          int64           `json:"size"`
	Compression   CompressionType `json:"compression"`
	Encrypted     bool            `json:"encrypted"`
}

// Archive is a packed migration folder plus its metadata.
type Archive struct {
	Metadata ArchiveMetadata
	Data     []byte
}

// Provider abstracts the storage backend.
type Provider interface {
	Store(ctx context.Context, archive *Archive) error
	Retrieve(ctx context.Context, id string) (*Archive, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*ArchiveMetadata, error)
}

// Manager packs migration folders and moves them through the provider.
type Manager struct {
	provider   Provider
	compressor *Compressor
	encryptor  *Encryptor
	logger     *logging.Logger
}

// NewManager creates a manager over a configured provider.
func NewManager(config Config, logger *logging.Logger) (*Manager, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}

	var encryptor *Encryptor
	if config.Passphrase != "" {
		encryptor = NewEncryptor(config.Passphrase)
	}

	return &Manager{
		provider:   provider,
		compressor: NewCompressor(config.Compression),
		encryptor:  encryptor,
		logger:     logger,
	}, nil
}

// ArchiveMigration packs a migration directory and stores it. Returns the
// archive id.
func (m *Manager) ArchiveMigration(ctx context.Context, migrationDir string) (string, error) {
	data, err := packDirectory(migrationDir)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s: %w", migrationDir, err)
	}

	data, err = m.compressor.Compress(data)
	if err != nil {
		return "", fmt.Errorf("failed to compress archive: %w", err)
	}

	encrypted := false
	if m.encryptor != nil {
		data, err = m.encryptor.Encrypt(data)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt archive: %w", err)
		}
		encrypted = true
	}

	archive := &Archive{
		Metadata: ArchiveMetadata{
			ID:            uuid.New().String(),
			MigrationName: filepath.Base(migrationDir),
			CreatedAt:     time.Now().UTC(),
			Size:          int64(len(data)),
			Compression:   m.compressor.Type(),
			Encrypted:     encrypted,
		},
		Data: data,
	}

	if err := m.provider.Store(ctx, archive); err != nil {
		return "", fmt.Errorf("failed to store archive: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"archive":   archive.Metadata.ID,
		"migration": archive.Metadata.MigrationName,
		"size":      archive.Metadata.Size,
	}).Info("Migration archived")

	return archive.Metadata.ID, nil
}

// RestoreMigration fetches an archive and unpacks it under targetDir.
func (m *Manager) RestoreMigration(ctx context.Context, id, targetDir string) error {
	archive, err := m.provider.Retrieve(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to retrieve archive %s: %w", id, err)
	}

	data := archive.Data
	if archive.Metadata.Encrypted {
		if m.encryptor == nil {
			return fmt.Errorf("archive %s is encrypted but no passphrase is configured", id)
		}
		data, err = m.encryptor.Decrypt(data)
		if err != nil {
			return fmt.Errorf("failed to decrypt archive %s: %w", id, err)
		}
	}

	data, err = NewCompressor(archive.Metadata.Compression).Decompress(data)
	if err != nil {
		return fmt.Errorf("failed to decompress archive %s: %w", id, err)
	}

	dir := filepath.Join(targetDir, archive.Metadata.MigrationName)
	if err := unpackDirectory(data, dir); err != nil {
		return fmt.Errorf("failed to unpack archive %s: %w", id, err)
	}
	return nil
}

// List returns stored archives, newest first.
func (m *Manager) List(ctx context.Context) ([]*ArchiveMetadata, error) {
	archives, err := m.provider.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].CreatedAt.After(archives[j].CreatedAt)
	})
	return archives, nil
}

// packDirectory tars the regular files of one directory (flat; migration
// folders carry no subdirectories).
func packDirectory(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		header := &tar.Header{
			Name: entry.Name(),
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := writer.WriteHeader(header); err != nil {
			return nil, err
		}
		if _, err := writer.Write(content); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// unpackDirectory restores a packed directory.
func unpackDirectory(data []byte, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	reader := tar.NewReader(bytes.NewReader(data))
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if strings.Contains(header.Name, "..") || strings.ContainsRune(header.Name, os.PathSeparator) {
			return fmt.Errorf("archive entry %q escapes the target directory", header.Name)
		}
		content, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, header.Name), content, 0o644); err != nil {
			return err
		}
	}
	return nil
}
