// Package mempool provides size-classed buffer pools for the per-image grids
// allocated on every detection call.
package mempool

import (
	"sync"
)

var (
	boolPools  sync.Map // key: size class (int), value: *sync.Pool
	int32Pools sync.Map // key: size class (int), value: *sync.Pool
)

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	p, _ := pAny.(*sync.Pool)
	return p
}

// get retrieves a zeroed slice of length n backed by a pooled buffer.
func get[T any](pools *sync.Map, n int) []T {
	cls := sizeClass(n)
	p := poolFor[T](pools, cls)
	if p == nil {
		return make([]T, n, cls)
	}
	buf, ok := p.Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	p := poolFor[T](pools, sizeClass(cap(buf)))
	if p == nil {
		return
	}
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetBool retrieves a zeroed []bool of length n from the pool.
// The caller must return it via PutBool when done.
func GetBool(n int) []bool {
	return get[bool](&boolPools, n)
}

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) {
	put(&boolPools, buf)
}

// GetInt32 retrieves a zeroed []int32 of length n from the pool.
// The caller must return it via PutInt32 when done.
func GetInt32(n int) []int32 {
	return get[int32](&int32Pools, n)
}

// PutInt32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutInt32(buf []int32) {
	put(&int32Pools, buf)
}
