package cache

import "golang.org/x/sync/singleflight"

// Flight runs at most one call per key at a time. Callers arriving while a
// call is in progress wait for it and share its result.
type Flight[T any] struct {
	g singleflight.Group
}

// Do runs fn for key unless a call for key is already running. shared
// reports whether the result was handed to more than one caller.
func (f *Flight[T]) Do(key string, fn func() (T, error)) (v T, shared bool, err error) {
	res, err, shared := f.g.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return v, shared, err
	}
	v, _ = res.(T)
	return v, shared, nil
}

// Forget makes the next call for key run fn again even if a call is still
// in progress.
func (f *Flight[T]) Forget(key string) {
	f.g.Forget(key)
}
