package session

import (
	"context"
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNoCredential is returned by a channel that holds nothing
var ErrNoCredential = errors.New("no stored refresh credential")

// CredentialChannel is where the refresh credential lives between runs.
// The coordinator logic is the same whether that is an HttpOnly cookie the
// transport carries by itself, the OS keyring, or test memory; only the
// channel differs.
type CredentialChannel interface {
	Load(ctx context.Context) (string, error)
	Store(ctx context.Context, raw string) error
	Clear(ctx context.Context) error
}

// MemoryChannel keeps the credential in process memory. Tests mostly.
type MemoryChannel struct {
	mu  sync.Mutex
	raw string
}

func (c *MemoryChannel) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw == "" {
		return "", ErrNoCredential
	}
	return c.raw, nil
}

func (c *MemoryChannel) Store(ctx context.Context, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = raw
	return nil
}

func (c *MemoryChannel) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = ""
	return nil
}

// CookieChannel is the ambient variant: the refresh credential is an
// HttpOnly cookie the http.Client's jar sends and receives on its own, so
// script-level code never sees the value. All methods are no-ops.
type CookieChannel struct{}

func (CookieChannel) Load(ctx context.Context) (string, error)    { return "", ErrNoCredential }
func (CookieChannel) Store(ctx context.Context, raw string) error { return nil }
func (CookieChannel) Clear(ctx context.Context) error             { return nil }

// KeyringChannel persists the credential in the OS keyring, for native
// clients that have no cookie jar surviving restarts.
type KeyringChannel struct {
	// Service and Key name the keyring entry
	Service string
	Key     string
}

func (c KeyringChannel) Load(ctx context.Context) (string, error) {
	raw, err := keyring.Get(c.Service, c.Key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoCredential
	}
	return raw, err
}

func (c KeyringChannel) Store(ctx context.Context, raw string) error {
	return keyring.Set(c.Service, c.Key, raw)
}

func (c KeyringChannel) Clear(ctx context.Context) error {
	err := keyring.Delete(c.Service, c.Key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
