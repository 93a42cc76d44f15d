package ann

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/curata/core"
)

// Default graph parameters.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50
)

// LoadStatus reports how Load produced a usable index.
type LoadStatus int

const (
	// LoadStatusLoaded means the graph was read from the persisted file.
	LoadStatusLoaded LoadStatus = iota
	// LoadStatusCreated means no file existed and an empty index was created.
	LoadStatusCreated
)

// String returns a short label for logs.
func (s LoadStatus) String() string {
	if s == LoadStatusCreated {
		return "created"
	}
	return "loaded"
}

// Index is a thread-safe HNSW vector index keyed by item ID.
type Index struct {
	mu          sync.RWMutex
	g           *graph
	ef          int
	compression Compression
	seed        uint64
	seeded      bool
	logger      *slog.Logger
}

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		idx.logger = logger
		return nil
	}
}

// WithSeed fixes the level generator seed so builds are reproducible.
func WithSeed(seed uint64) Option {
	return func(idx *Index) error {
		idx.seed = seed
		idx.seeded = true
		return nil
	}
}

// WithCompression selects the codec used by Save.
// Default is CompressionZstd.
func WithCompression(c Compression) Option {
	return func(idx *Index) error {
		if c > CompressionLZ4 {
			return fmt.Errorf("%w: unknown compression %d", ErrInvalidConfig, c)
		}
		idx.compression = c
		return nil
	}
}

// New returns an uninitialized index. Call Init or Load before use.
func New(opts ...Option) (*Index, error) {
	idx := &Index{
		ef:          DefaultEfSearch,
		compression: CompressionZstd,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "ann")
	return idx, nil
}

func (idx *Index) newRand() *rand.Rand {
	if idx.seeded {
		return rand.New(rand.NewPCG(idx.seed, idx.seed^0x9e3779b97f4a7c15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Init allocates a new empty index, discarding any previous contents.
func (idx *Index) Init(dim, capacity, m, efConstruction int) error {
	if err := validateConfig(dim, capacity, m, efConstruction); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.g = newGraph(dim, capacity, m, efConstruction, idx.newRand())
	idx.logger.Debug("index initialized", "dim", dim, "capacity", capacity, "m", m, "ef_construction", efConstruction)
	return nil
}

func validateConfig(dim, capacity, m, efConstruction int) error {
	switch {
	case dim <= 0:
		return fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidConfig, dim)
	case capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, capacity)
	case m < 2:
		return fmt.Errorf("%w: M must be at least 2, got %d", ErrInvalidConfig, m)
	case efConstruction <= 0:
		return fmt.Errorf("%w: ef_construction must be positive, got %d", ErrInvalidConfig, efConstruction)
	}
	return nil
}

// AddItem inserts a vector under id. The vector is copied.
func (idx *Index) AddItem(id core.ID, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.g == nil {
		return ErrNotInitialized
	}
	if len(vec) != idx.g.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), idx.g.dim)
	}
	if idx.g.len() >= idx.g.capacity {
		return fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, idx.g.capacity)
	}
	if _, ok := idx.g.labels[uint64(id)]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateLabel, id)
	}

	idx.g.insert(uint64(id), slices.Clone(vec))
	return nil
}

// SetSearchBreadth sets ef, the candidate list size used by SearchKNN.
// Searches always use at least k candidates.
func (idx *Index) SetSearchBreadth(ef int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.g == nil {
		return ErrNotInitialized
	}
	if ef <= 0 {
		return fmt.Errorf("%w: ef must be positive, got %d", ErrInvalidConfig, ef)
	}
	idx.ef = ef
	return nil
}

// SearchBreadth returns the configured ef.
func (idx *Index) SearchBreadth() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ef
}

// SearchKNN returns up to k neighbours of query ordered by descending
// similarity (1 - inner-product distance). Equal similarities are ordered by
// ascending id. The query slice is not retained.
func (idx *Index) SearchKNN(query []float32, k int) ([]core.Candidate, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.g == nil {
		return nil, ErrNotInitialized
	}
	if len(query) != idx.g.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.g.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	found := idx.g.search(query, k, idx.ef)
	results := make([]core.Candidate, len(found))
	for i, c := range found {
		results[i] = core.Candidate{
			ItemId: core.ID(idx.g.nodes[c.node].label),
			Score:  1 - c.dist,
		}
	}
	slices.SortStableFunc(results, func(a, b core.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemId, b.ItemId)
	})
	return results, nil
}

// Count returns the number of indexed vectors.
func (idx *Index) Count() (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.g == nil {
		return 0, ErrNotInitialized
	}
	return idx.g.len(), nil
}

// Contains reports whether id has been indexed.
func (idx *Index) Contains(id core.ID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.g == nil {
		return false
	}
	_, ok := idx.g.labels[uint64(id)]
	return ok
}

// Dim returns the vector dimension, or 0 when uninitialized.
func (idx *Index) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.g == nil {
		return 0
	}
	return idx.g.dim
}

// Capacity returns the maximum number of vectors, or 0 when uninitialized.
func (idx *Index) Capacity() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.g == nil {
		return 0
	}
	return idx.g.capacity
}

// Save writes the full graph to path atomically.
func (idx *Index) Save(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.g == nil {
		return ErrNotInitialized
	}

	start := time.Now()
	p := params{
		dim:            idx.g.dim,
		capacity:       idx.g.capacity,
		m:              idx.g.m,
		efConstruction: idx.g.efConstruction,
		ef:             idx.ef,
	}
	if err := writeFile(path, idx.g, p, idx.compression); err != nil {
		return fmt.Errorf("save index %s: %w", path, err)
	}
	idx.logger.Info("index saved", "path", path, "count", idx.g.len(), "compression", idx.compression, "duration", time.Since(start))
	return nil
}

// Load replaces the index with the graph persisted at path.
//
// A missing file is not an error: an empty index of the given dimension and
// capacity is created with default graph parameters and LoadStatusCreated is
// returned. A file whose dimension differs from dim, or that fails integrity
// checks, yields ErrCorruptIndex and leaves the index unchanged. The loaded
// capacity is the larger of the persisted one and capacity.
func (idx *Index) Load(path string, dim, capacity int) (LoadStatus, error) {
	if err := validateConfig(dim, capacity, DefaultM, DefaultEfConstruction); err != nil {
		return LoadStatusLoaded, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	g, p, err := readFile(path, idx.newRand())
	if errors.Is(err, fs.ErrNotExist) {
		idx.g = newGraph(dim, capacity, DefaultM, DefaultEfConstruction, idx.newRand())
		idx.logger.Info("no persisted index, created empty one", "path", path, "dim", dim, "capacity", capacity)
		return LoadStatusCreated, nil
	}
	if err != nil {
		return LoadStatusLoaded, err
	}
	if p.dim != dim {
		return LoadStatusLoaded, fmt.Errorf("%w: file dimension %d, want %d", ErrCorruptIndex, p.dim, dim)
	}

	g.capacity = max(g.capacity, capacity)
	idx.g = g
	idx.ef = p.ef
	if idx.ef <= 0 {
		idx.ef = DefaultEfSearch
	}
	idx.logger.Info("index loaded", "path", path, "count", g.len(), "dim", dim, "capacity", g.capacity)
	return LoadStatusLoaded, nil
}

// Destroy releases the graph. The index must be re-initialized before reuse.
func (idx *Index) Destroy() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.g = nil
}
