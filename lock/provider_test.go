package lock

import (
	"context"
	"sync"
)

type call struct {
	method string
	stmt   Statement
	args   []int64
}

// recorder is a Provider that records calls and answers from fixed values.
type recorder struct {
	mu    sync.Mutex
	calls []call

	result bool
	keys   []int64
	err    error
}

func (r *recorder) record(method string, stmt Statement, args ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{method: method, stmt: stmt, args: args})
}

func (r *recorder) Exec(_ context.Context, stmt Statement, args ...int64) error {
	r.record("Exec", stmt, args...)
	return r.err
}

func (r *recorder) QueryBool(_ context.Context, stmt Statement, key int64) (bool, error) {
	r.record("QueryBool", stmt, key)
	if r.err != nil {
		return false, r.err
	}
	return r.result, nil
}

func (r *recorder) QueryKeys(_ context.Context, stmt Statement) ([]int64, error) {
	r.record("QueryKeys", stmt)
	if r.err != nil {
		return nil, r.err
	}
	return r.keys, nil
}
