// Package benchmark times the detection stages on real images.
package benchmark

import (
	"fmt"
	"image"
	"io"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/shapedetect/internal/common"
	"github.com/MeKo-Tech/shapedetect/internal/detector"
	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// Stage names, in pipeline order.
const (
	StageBinarize = "binarize"
	StageExtract  = "extract_blobs"
	StageTrace    = "trace_contours"
	StageSimplify = "simplify"
	StageClassify = "classify"
	StageDetect   = "detect"
)

// Stages lists every stage a DetectionBenchmark registers.
var Stages = []string{StageBinarize, StageExtract, StageTrace, StageSimplify, StageClassify, StageDetect}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  `json:"allocBytes"`
	TotalAllocBytes uint64  `json:"totalAllocBytes"`
	SysBytes        uint64  `json:"sysBytes"`
	NumGC           uint32  `json:"numGC"`
	GCCPUFraction   float64 `json:"gcCpuFraction"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.SysBytes/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// Result holds the timings of one benchmark.
type Result struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"totalNs"`
	Min        time.Duration `json:"minNs"`
	Max        time.Duration `json:"maxNs"`
	// AllocatedBytes is the cumulative heap allocation during the run.
	AllocatedBytes uint64 `json:"allocatedBytes"`
	Err            error  `json:"-"`
	Error          string `json:"error,omitempty"`
}

// Mean is the average duration of one iteration.
func (r Result) Mean() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Iterations)
}

// PerSecond is the number of iterations that fit into a second at the mean rate.
func (r Result) PerSecond() float64 {
	mean := r.Mean()
	if mean <= 0 {
		return 0
	}
	return float64(time.Second) / float64(mean)
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, min: %v, max: %v, %.1f/s, alloc: %d KB",
		r.Name, r.Iterations, r.Mean(), r.Min, r.Max, r.PerSecond(), r.AllocatedBytes/1024)
}

type benchmark struct {
	name string
	fn   func() error
}

// Suite runs named benchmark functions.
type Suite struct {
	benchmarks []benchmark
	results    []Result
	mu         sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add registers fn under name.
func (s *Suite) Add(name string, fn func() error) {
	s.benchmarks = append(s.benchmarks, benchmark{name: name, fn: fn})
}

// Names returns the registered benchmark names in order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.benchmarks))
	for i, b := range s.benchmarks {
		names[i] = b.name
	}
	return names
}

// Run runs a single benchmark.
func (s *Suite) Run(name string, iterations int) Result {
	for _, b := range s.benchmarks {
		if b.name == name {
			return runBenchmark(b, iterations)
		}
	}
	err := fmt.Errorf("benchmark '%s' not found", name)
	return Result{Name: name, Err: err, Error: err.Error()}
}

// RunAll runs every benchmark in registration order.
func (s *Suite) RunAll(iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		s.results = append(s.results, runBenchmark(b, iterations))
	}
	return s.results
}

// Results returns the results of the last RunAll.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteResults prints one line per result of the last RunAll.
func (s *Suite) WriteResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, r := range s.Results() {
		_, _ = fmt.Fprintln(w, r.String())
	}
}

func runBenchmark(b benchmark, iterations int) Result {
	if iterations < 1 {
		iterations = 1
	}
	runtime.GC()
	before := GetMemoryStats()

	res := Result{Name: b.name, Min: time.Duration(math.MaxInt64)}
	for range iterations {
		timer := common.NewNamedTimer(b.name)
		err := b.fn()
		d := timer.Stop()
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			break
		}
		res.Iterations++
		res.Total += d
		res.Min = min(res.Min, d)
		res.Max = max(res.Max, d)
	}
	if res.Iterations == 0 {
		res.Min = 0
	}
	res.AllocatedBytes = GetMemoryStats().TotalAllocBytes - before.TotalAllocBytes
	return res
}

// DetectionBenchmark times each detection stage on one image. Every stage
// runs on the output of the previous one, computed once up front, so a
// stage's timing excludes the stages before it.
type DetectionBenchmark struct {
	*Suite

	buf      *detector.PixelBuffer
	cfg      detector.Config
	grid     *detector.BinaryGrid
	blobs    []detector.Blob
	contours [][]utils.Point
	vertices [][]utils.Point
}

// NewDetectionBenchmark prepares the stage inputs for img and registers one
// benchmark per stage, prefixed with prefix.
func NewDetectionBenchmark(prefix string, img image.Image, cfg detector.Config) (*DetectionBenchmark, error) {
	if img == nil {
		return nil, fmt.Errorf("image cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &DetectionBenchmark{Suite: NewSuite(), buf: detector.FromImage(img), cfg: cfg}
	b.grid = detector.Binarize(b.buf, cfg.Threshold)
	for _, blob := range detector.ExtractBlobs(b.grid) {
		if blob.Area < cfg.MinBlobArea {
			continue
		}
		contour := detector.TraceContour(blob, b.grid)
		if len(contour) < cfg.MinContourLength {
			continue
		}
		b.blobs = append(b.blobs, blob)
		b.contours = append(b.contours, contour)
		b.vertices = append(b.vertices, detector.SimplifyClosedContour(contour, cfg.Epsilon, cfg.ClosureDistance))
	}

	b.Add(prefix+StageBinarize, b.binarize)
	b.Add(prefix+StageExtract, b.extract)
	b.Add(prefix+StageTrace, b.trace)
	b.Add(prefix+StageSimplify, b.simplify)
	b.Add(prefix+StageClassify, b.classify)
	b.Add(prefix+StageDetect, b.detect)
	return b, nil
}

// Candidates is the number of blobs that reach the classifier.
func (b *DetectionBenchmark) Candidates() int {
	return len(b.blobs)
}

// Close returns the prepared grid to the buffer pool.
func (b *DetectionBenchmark) Close() {
	if b.grid != nil {
		detector.ReleaseGrid(b.grid)
		b.grid = nil
	}
}

func (b *DetectionBenchmark) binarize() error {
	detector.ReleaseGrid(detector.Binarize(b.buf, b.cfg.Threshold))
	return nil
}

func (b *DetectionBenchmark) extract() error {
	detector.ExtractBlobs(b.grid)
	return nil
}

func (b *DetectionBenchmark) trace() error {
	for _, blob := range b.blobs {
		detector.TraceContour(blob, b.grid)
	}
	return nil
}

func (b *DetectionBenchmark) simplify() error {
	for _, c := range b.contours {
		detector.SimplifyClosedContour(c, b.cfg.Epsilon, b.cfg.ClosureDistance)
	}
	return nil
}

func (b *DetectionBenchmark) classify() error {
	for i, blob := range b.blobs {
		detector.Classify(b.vertices[i], b.contours[i], blob, b.cfg)
	}
	return nil
}

func (b *DetectionBenchmark) detect() error {
	detector.Detect(b.buf, b.cfg)
	return nil
}
