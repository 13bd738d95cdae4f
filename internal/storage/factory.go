package storage

import (
	"context"
	"fmt"
)

// NewProvider constructs the backend selected by the configuration.
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case ProviderLocal, "":
		return NewLocalProvider(config.Path)
	case ProviderS3:
		return NewS3Provider(config)
	case ProviderGCS:
		return NewGCSProvider(context.Background(), config)
	case ProviderAzure:
		return NewAzureProvider(config)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", config.Provider)
	}
}
