package storage

import (
	"fmt"
	"log"
	"sync"
)

// Factory creates storage providers and tracks which backends are usable
type Factory struct {
	mu                   sync.RWMutex
	unavailableProviders map[string]string
}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{
		unavailableProviders: make(map[string]string),
	}
}

// MarkProviderUnavailable marks a provider type as unavailable with a reason
func (f *Factory) MarkProviderUnavailable(providerType, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailableProviders[providerType] = reason
	log.Printf("Storage provider '%s' marked as unavailable: %s", providerType, reason)
}

// IsProviderAvailable checks if a provider type is available
func (f *Factory) IsProviderAvailable(providerType string) (bool, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reason, unavailable := f.unavailableProviders[providerType]
	return !unavailable, reason
}

// CreateProvider creates and initializes a provider of the given type
func (f *Factory) CreateProvider(providerType string, config map[string]string) (Provider, error) {
	f.mu.RLock()
	if reason, unavailable := f.unavailableProviders[providerType]; unavailable {
		f.mu.RUnlock()
		return nil, fmt.Errorf("%s provider is currently unavailable: %s", providerType, reason)
	}
	f.mu.RUnlock()

	var provider Provider

	switch providerType {
	case "local":
		provider = NewLocalStorage()
	case "s3", "amazon", "aws":
		provider = NewAmazonS3Storage()
	case "gcs", "google":
		provider = NewGoogleCloudStorage()
	default:
		return nil, fmt.Errorf("unsupported storage provider type: %s", providerType)
	}

	if err := provider.Initialize(config); err != nil {
		f.MarkProviderUnavailable(providerType, err.Error())
		return nil, fmt.Errorf("failed to initialize %s storage provider: %w", providerType, err)
	}

	return provider, nil
}

// DefaultFactory is the default storage factory instance
var DefaultFactory = NewFactory()

// CreateProvider creates a storage provider using the default factory
func CreateProvider(providerType string, config map[string]string) (Provider, error) {
	return DefaultFactory.CreateProvider(providerType, config)
}

// IsProviderAvailable checks if a provider type is available using the default factory
func IsProviderAvailable(providerType string) (bool, string) {
	return DefaultFactory.IsProviderAvailable(providerType)
}
