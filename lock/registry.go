package lock

import (
	"context"

	"github.com/go-logr/logr"
)

// Registry queries lock state that is not tied to a single handle.
type Registry struct {
	provider Provider
}

// NewRegistry creates a registry backed by provider.
func NewRegistry(provider Provider) *Registry {
	return &Registry{provider: provider}
}

// IsLocked reports whether anyone holds an advisory lock on key, in any
// scope or mode.
func (r *Registry) IsLocked(ctx context.Context, key int64) (bool, error) {
	locked, err := r.provider.QueryBool(ctx, StatementIsLocked, key)
	if err != nil {
		return false, newKeyedProviderError(StatementIsLocked, key, err)
	}
	return locked, nil
}

// HeldKeys returns the keys of all granted advisory locks in provider order.
// A key appears once per holder.
func (r *Registry) HeldKeys(ctx context.Context) ([]int64, error) {
	keys, err := r.provider.QueryKeys(ctx, StatementHeldKeys)
	if err != nil {
		return nil, newProviderError(StatementHeldKeys, err)
	}
	return keys, nil
}

// ReleaseAll releases every session lock held by the provider's session.
//
// ReleaseAll is best-effort. It is meant for cleanup paths where the
// session may already be broken, so a failure is logged to the logger in
// ctx and otherwise dropped. Use ReleaseAllStrict to observe the error.
func (r *Registry) ReleaseAll(ctx context.Context) {
	if err := r.ReleaseAllStrict(ctx); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "lock: release all")
	}
}

// ReleaseAllStrict is ReleaseAll returning the provider failure.
func (r *Registry) ReleaseAllStrict(ctx context.Context) error {
	if err := r.provider.Exec(ctx, StatementUnlockAll); err != nil {
		return newProviderError(StatementUnlockAll, err)
	}
	return nil
}
