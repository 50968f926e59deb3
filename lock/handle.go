package lock

import (
	"context"
	"fmt"
)

var _ Locker = (*Handle)(nil)

// Handle is a lock request for one key, scope and mode.
//
// A Handle keeps no acquired state; whether the lock is held is known only
// to the provider. Handles are immutable and safe for concurrent use as far
// as the provider allows.
type Handle struct {
	provider Provider
	key      int64
	config   Config
}

// New creates a handle for key. Without options the handle takes session
// scoped exclusive locks.
func New(provider Provider, key int64, options ...Option) *Handle {
	config := Config{
		Scope: SessionScope,
		Mode:  Exclusive,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Handle{
		provider: provider,
		key:      key,
		config:   config,
	}
}

// NewNamed creates a handle whose key is derived from name with KeyFromString.
func NewNamed(provider Provider, name string, options ...Option) *Handle {
	return New(provider, KeyFromString(name), options...)
}

// With returns a copy of h with options applied on top of its attributes.
func (h *Handle) With(options ...Option) *Handle {
	config := h.config
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Handle{
		provider: h.provider,
		key:      h.key,
		config:   config,
	}
}

// WithKey returns a copy of h bound to key.
func (h *Handle) WithKey(key int64) *Handle {
	c := *h
	c.key = key
	return &c
}

// Key returns the advisory lock key.
func (h *Handle) Key() int64 { return h.key }

// Scope returns the lifetime of locks taken through h.
func (h *Handle) Scope() Scope { return h.config.Scope }

// Mode returns the lock mode.
func (h *Handle) Mode() Mode { return h.config.Mode }

// Shared reports whether h takes shared locks.
func (h *Handle) Shared() bool { return h.config.Mode == Shared }

// String describes the handle, for example "session exclusive lock 42".
func (h *Handle) String() string {
	return fmt.Sprintf("%s %s lock %d", h.config.Scope, h.config.Mode, h.key)
}

// Lock acquires the lock, blocking until the provider grants it. There is no
// client side timeout; cancel ctx to give up waiting.
func (h *Handle) Lock(ctx context.Context) error {
	stmt := LockStatement(h.config.Scope, h.config.Mode, true)
	if err := h.provider.Exec(ctx, stmt, h.key); err != nil {
		return newKeyedProviderError(stmt, h.key, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without waiting for other holders.
func (h *Handle) TryLock(ctx context.Context) (bool, error) {
	stmt := LockStatement(h.config.Scope, h.config.Mode, false)
	acquired, err := h.provider.QueryBool(ctx, stmt, h.key)
	if err != nil {
		return false, newKeyedProviderError(stmt, h.key, err)
	}
	return acquired, nil
}

// Unlock releases one hold of a session scoped lock. Transaction scoped
// handles return ErrReleaseUnsupported without contacting the provider.
func (h *Handle) Unlock(ctx context.Context) error {
	if h.config.Scope == TransactionScope {
		return ErrReleaseUnsupported
	}

	stmt := UnlockStatement(h.config.Mode)
	if err := h.provider.Exec(ctx, stmt, h.key); err != nil {
		return newKeyedProviderError(stmt, h.key, err)
	}
	return nil
}
