package server

import (
	"sync"

	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/pipeline"
)

const defaultPipelineCacheSize = 16

// pipelineCache holds pipelines built for per-request detector overrides,
// keyed by the effective detector configuration. The oldest entry is
// dropped once the cache is full. Every cached pipeline shares resources, so
// in-flight and memory limits hold server-wide.
type pipelineCache struct {
	mu         sync.Mutex
	base       pipeline.Config
	resources  *pipeline.ResourceManager
	maxEntries int
	entries    map[detector.Config]*pipeline.Pipeline
	order      []detector.Config
}

func newPipelineCache(base pipeline.Config, resources *pipeline.ResourceManager, maxEntries int) *pipelineCache {
	if maxEntries <= 0 {
		maxEntries = defaultPipelineCacheSize
	}
	return &pipelineCache{
		base:       base,
		resources:  resources,
		maxEntries: maxEntries,
		entries:    make(map[detector.Config]*pipeline.Pipeline),
	}
}

// GetOrCreate returns the pipeline for det, building it on first use. det
// must pass detector.Config.Validate, which also keeps NaN out of the keys.
func (c *pipelineCache) GetOrCreate(det detector.Config) (*pipeline.Pipeline, error) {
	if err := det.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[det]; ok {
		return p, nil
	}

	p, err := pipeline.NewBuilder().
		WithDetectorConfig(det).
		WithImageConstraints(c.base.Constraints).
		WithParallelWorkers(c.base.Parallel.MaxWorkers).
		WithMemoryLimit(c.base.Resource.MaxMemoryBytes).
		WithMaxInFlight(c.base.Resource.MaxInFlight).
		WithResourceManager(c.resources).
		Build()
	if err != nil {
		return nil, err
	}

	if len(c.order) >= c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[det] = p
	c.order = append(c.order, det)
	return p, nil
}

// Len reports the number of cached pipelines.
func (c *pipelineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every cached pipeline.
func (c *pipelineCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.entries {
		_ = p.Close()
	}
	c.entries = make(map[detector.Config]*pipeline.Pipeline)
	c.order = nil
	return nil
}
