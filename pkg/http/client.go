package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientConfig holds transport tuning for outbound HTTP clients
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	KeepAlive             time.Duration

	DisableCompression bool
	MinTLSVersion      uint16
}

// ProviderClientConfig is tuned for the billing provider API: one host,
// moderate concurrency, slow responses tolerated up to the call timeout.
func ProviderClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		KeepAlive:             60 * time.Second,

		MinTLSVersion: tls.VersionTLS12,
	}
}

// WebhookClientConfig is tuned for event fan-out to many receiver hosts.
// Few connections per host so a slow receiver can't hog the pool.
func WebhookClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     5,
		IdleConnTimeout:     30 * time.Second,

		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		KeepAlive:             30 * time.Second,

		MinTLSVersion: tls.VersionTLS12,
	}
}

// NewHTTPClient creates an HTTP client with the given configuration
func NewHTTPClient(cfg *ClientConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,

		DisableCompression: cfg.DisableCompression,
		TLSClientConfig:    &tls.Config{MinVersion: cfg.MinTLSVersion},
		ForceAttemptHTTP2:  true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
