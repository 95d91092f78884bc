package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResourceConfig bounds memory and concurrency during parallel processing.
type ResourceConfig struct {
	MaxMemoryBytes  uint64        // Heap budget in bytes (0 = no limit)
	MaxInFlight     int           // Images processed at once across all workers (0 = no limit)
	MemoryThreshold float64       // Fraction of MaxMemoryBytes that counts as pressure (default 0.8)
	BackoffInterval time.Duration // Wait between pressure checks
	MaxBackoff      time.Duration // Stop waiting after this long
}

// DefaultResourceConfig returns a config with no limits.
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		MemoryThreshold: 0.8,
		BackoffInterval: 50 * time.Millisecond,
		MaxBackoff:      2 * time.Second,
	}
}

func (c ResourceConfig) enabled() bool {
	return c.MaxMemoryBytes > 0 || c.MaxInFlight > 0
}

// ResourceStats holds resource usage statistics.
type ResourceStats struct {
	ActiveJobs           int       `json:"active_jobs"`
	PeakJobs             int       `json:"peak_jobs"`
	MemoryPressureEvents int       `json:"memory_pressure_events"`
	LastMemoryPressure   time.Time `json:"last_memory_pressure"`
	PeakHeapBytes        uint64    `json:"peak_heap_bytes"`
	MemoryUtilization    float64   `json:"memory_utilization"`
}

// ResourceManager gates image jobs on an in-flight limit and heap pressure.
type ResourceManager struct {
	cfg      ResourceConfig
	sem      chan struct{}
	readHeap func() uint64

	mu    sync.Mutex
	stats ResourceStats
}

// NewResourceManager creates a resource manager with the given configuration.
func NewResourceManager(cfg ResourceConfig) *ResourceManager {
	if cfg.MemoryThreshold <= 0 || cfg.MemoryThreshold > 1 {
		cfg.MemoryThreshold = 0.8
	}
	if cfg.BackoffInterval <= 0 {
		cfg.BackoffInterval = 50 * time.Millisecond
	}
	rm := &ResourceManager{
		cfg:      cfg,
		readHeap: func() uint64 { return GetMemStats().AllocBytes },
	}
	if cfg.MaxInFlight > 0 {
		rm.sem = make(chan struct{}, cfg.MaxInFlight)
	}
	return rm
}

// Acquire blocks until a job slot is free and memory pressure has eased. After
// MaxBackoff it proceeds unless the heap is over the hard limit, in which case
// a *ResourceError is returned. Every successful Acquire must be paired with Release.
func (rm *ResourceManager) Acquire(ctx context.Context) error {
	if rm.sem != nil {
		select {
		case rm.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := rm.waitForMemory(ctx); err != nil {
		if rm.sem != nil {
			<-rm.sem
		}
		return err
	}

	rm.mu.Lock()
	rm.stats.ActiveJobs++
	rm.stats.PeakJobs = max(rm.stats.PeakJobs, rm.stats.ActiveJobs)
	rm.mu.Unlock()
	return nil
}

// Release frees a slot taken by Acquire.
func (rm *ResourceManager) Release() {
	rm.mu.Lock()
	if rm.stats.ActiveJobs > 0 {
		rm.stats.ActiveJobs--
	}
	rm.mu.Unlock()

	if rm.sem != nil {
		select {
		case <-rm.sem:
		default:
		}
	}
}

func (rm *ResourceManager) waitForMemory(ctx context.Context) error {
	if !rm.CheckMemoryPressure() {
		return nil
	}

	deadline := time.Now().Add(rm.cfg.MaxBackoff)
	ticker := time.NewTicker(rm.cfg.BackoffInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !rm.CheckMemoryPressure() {
			return nil
		}
		if time.Now().After(deadline) {
			if heap := rm.readHeap(); heap > rm.cfg.MaxMemoryBytes {
				return NewMemoryLimitError(heap, rm.cfg.MaxMemoryBytes)
			}
			return nil
		}
	}
}

// CheckMemoryPressure reports whether heap usage exceeds the threshold.
func (rm *ResourceManager) CheckMemoryPressure() bool {
	if rm.cfg.MaxMemoryBytes == 0 {
		return false
	}

	heap := rm.readHeap()
	utilization := float64(heap) / float64(rm.cfg.MaxMemoryBytes)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.stats.MemoryUtilization = utilization
	rm.stats.PeakHeapBytes = max(rm.stats.PeakHeapBytes, heap)
	if utilization > rm.cfg.MemoryThreshold {
		rm.stats.MemoryPressureEvents++
		rm.stats.LastMemoryPressure = time.Now()
		return true
	}
	return false
}

// GetStats returns a copy of current resource statistics.
func (rm *ResourceManager) GetStats() ResourceStats {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.stats
}

// ResourceError reports a resource limit that could not be satisfied.
type ResourceError struct {
	Type    string
	Message string
}

func (e ResourceError) Error() string {
	return fmt.Sprintf("resource limit exceeded (%s): %s", e.Type, e.Message)
}

// NewMemoryLimitError creates a memory limit error.
func NewMemoryLimitError(current, limit uint64) *ResourceError {
	return &ResourceError{
		Type:    "memory",
		Message: fmt.Sprintf("heap %d bytes exceeds limit %d bytes", current, limit),
	}
}
