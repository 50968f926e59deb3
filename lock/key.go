package lock

import "hash/fnv"

// KeyFromString converts a resource name to a lock key using FNV-1a.
// Distinct names may collide; callers that cannot tolerate it must assign
// keys themselves.
func KeyFromString(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
