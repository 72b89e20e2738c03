package factory

import (
	"net/http"
	"time"
)

// SharedClientFactory hands out the two pooled HTTP clients every provider
// adapter and health probe shares a transport with, adapted from the
// teacher's SharedClientFactory (internal/adapter/factory/client.go) for two
// concerns instead of health/discovery: provider traffic (long timeout,
// streaming-friendly) and health probes (short timeout).
type SharedClientFactory struct {
	providerClient *http.Client
	healthClient   *http.Client
}

const (
	DefaultHealthProbeTimeout = 5 * time.Second
	DefaultProviderTimeout    = 120 * time.Second
)

func NewSharedClientFactory() *SharedClientFactory {
	sharedTransport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  false,
	}

	return &SharedClientFactory{
		providerClient: &http.Client{
			Timeout:   DefaultProviderTimeout,
			Transport: sharedTransport,
		},
		healthClient: &http.Client{
			Timeout:   DefaultHealthProbeTimeout,
			Transport: sharedTransport,
		},
	}
}

func (f *SharedClientFactory) GetProviderClient() *http.Client {
	return f.providerClient
}

func (f *SharedClientFactory) GetHealthClient() *http.Client {
	return f.healthClient
}
