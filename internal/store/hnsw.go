package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// seedID names the initializer row every vector table is created with.
const seedID = "__seed__"

// HNSWConfig tunes the per-table graphs.
type HNSWConfig struct {
	// Dir holds <table>.hnsw and <table>.hnsw.meta. Empty keeps tables in memory.
	Dir      string
	M        int
	EfSearch int
}

// HNSWVectorIndex implements VectorIndex with coder/hnsw graphs.
type HNSWVectorIndex struct {
	mu     sync.RWMutex
	cfg    HNSWConfig
	tables map[string]*vectorTable
	closed bool
	// batches counts open Batch calls; while positive, writes only mark
	// their table dirty.
	batches int
}

var _ VectorIndex = (*HNSWVectorIndex)(nil)

// vectorTable is one graph plus the string<->uint64 key mapping.
// Replaced records are orphaned in the graph rather than deleted.
type vectorTable struct {
	graph   *hnsw.Graph[uint64]
	dims    int
	records map[string]*EmbeddingRecord
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	dirty   bool
}

// vectorMetadata is the gob-encoded side file of a persisted table.
type vectorMetadata struct {
	Dims    int
	Records map[string]*EmbeddingRecord
	IDMap   map[string]uint64
	NextKey uint64
}

// NewHNSWVectorIndex creates an index. Tables load lazily from cfg.Dir.
func NewHNSWVectorIndex(cfg HNSWConfig) (*HNSWVectorIndex, error) {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return &HNSWVectorIndex{
		cfg:    cfg,
		tables: make(map[string]*vectorTable),
	}, nil
}

func (x *HNSWVectorIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = x.cfg.M
	g.EfSearch = x.cfg.EfSearch
	g.Ml = 0.25
	return g
}

// newTable creates an empty table holding only the seed row (unit vector e0).
func (x *HNSWVectorIndex) newTable(dims int) *vectorTable {
	t := &vectorTable{
		graph:   x.newGraph(),
		dims:    dims,
		records: make(map[string]*EmbeddingRecord),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
	}
	seed := make([]float32, dims)
	seed[0] = 1
	t.put(&EmbeddingRecord{ID: seedID, Vector: seed, Seed: true})
	return t
}

func (t *vectorTable) put(rec *EmbeddingRecord) {
	if old, ok := t.idMap[rec.ID]; ok {
		delete(t.keyMap, old)
	}
	key := t.nextKey
	t.nextKey++
	t.graph.Add(hnsw.MakeNode(key, rec.Vector))
	t.idMap[rec.ID] = key
	t.keyMap[key] = rec.ID
	t.records[rec.ID] = rec
}

func (x *HNSWVectorIndex) paths(table string) (graphPath, metaPath string) {
	graphPath = filepath.Join(x.cfg.Dir, table+".hnsw")
	return graphPath, graphPath + ".meta"
}

// table returns a loaded table, loading it from disk when persisted.
// Caller holds the write lock.
func (x *HNSWVectorIndex) table(name string) (*vectorTable, error) {
	if t, ok := x.tables[name]; ok {
		return t, nil
	}
	if x.cfg.Dir == "" {
		return nil, nil
	}
	graphPath, metaPath := x.paths(name)
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return nil, nil
	}

	t, err := x.load(graphPath, metaPath)
	if err != nil {
		return nil, fmt.Errorf("load vector table %s: %w", name, err)
	}
	x.tables[name] = t
	return t, nil
}

func (x *HNSWVectorIndex) load(graphPath, metaPath string) (*vectorTable, error) {
	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = mf.Close() }()

	var meta vectorMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	t := &vectorTable{
		graph:   x.newGraph(),
		dims:    meta.Dims,
		records: meta.Records,
		idMap:   meta.IDMap,
		keyMap:  make(map[uint64]string, len(meta.IDMap)),
		nextKey: meta.NextKey,
	}
	for id, key := range t.idMap {
		t.keyMap[key] = id
	}

	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = gf.Close() }()

	// Import needs an io.ByteReader.
	if err := t.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	t.graph.Distance = hnsw.CosineDistance
	return t, nil
}

// save writes the graph and metadata atomically (temp file + rename).
func (x *HNSWVectorIndex) save(name string, t *vectorTable) error {
	if x.cfg.Dir == "" {
		return nil
	}
	graphPath, metaPath := x.paths(name)

	if err := writeAtomic(graphPath, func(f *os.File) error {
		return t.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	return writeAtomic(metaPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(vectorMetadata{
			Dims:    t.dims,
			Records: t.records,
			IDMap:   t.idMap,
			NextKey: t.nextKey,
		})
	})
}

// persist saves t now, or marks it dirty while a batch is open.
// Caller holds the write lock.
func (x *HNSWVectorIndex) persist(name string, t *vectorTable) error {
	if x.batches > 0 {
		t.dirty = true
		return nil
	}
	if err := x.save(name, t); err != nil {
		t.dirty = true
		return err
	}
	t.dirty = false
	return nil
}

// flush saves every dirty table. Caller holds the write lock.
func (x *HNSWVectorIndex) flush() error {
	var errs []error
	for name, t := range x.tables {
		if !t.dirty {
			continue
		}
		if err := x.save(name, t); err != nil {
			errs = append(errs, fmt.Errorf("persist vector table %s: %w", name, err))
			continue
		}
		t.dirty = false
	}
	return errors.Join(errs...)
}

// Batch implements VectorIndex.
func (x *HNSWVectorIndex) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return ErrClosed
	}
	x.batches++
	x.mu.Unlock()

	err := fn(ctx)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.batches--
	if x.batches > 0 || x.closed {
		return err
	}
	return errors.Join(err, x.flush())
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Add implements VectorIndex. Vectors are stored normalized.
func (x *HNSWVectorIndex) Add(_ context.Context, table string, rec *EmbeddingRecord) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("embedding record requires an id")
	}
	if rec.ID == seedID {
		return fmt.Errorf("embedding id %q is reserved", seedID)
	}
	if isZero(rec.Vector) {
		return fmt.Errorf("embedding record %s has an empty or zero vector", rec.ID)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	t, err := x.table(table)
	if err != nil {
		return err
	}
	if t == nil {
		t = x.newTable(len(rec.Vector))
		x.tables[table] = t
	}
	if len(rec.Vector) != t.dims {
		return fmt.Errorf("%w: table %s expects %d, got %d", ErrDimensionMismatch, table, t.dims, len(rec.Vector))
	}

	stored := *rec
	stored.Vector = normalized(rec.Vector)
	stored.Seed = false
	t.put(&stored)

	if err := x.persist(table, t); err != nil {
		return fmt.Errorf("persist vector table %s: %w", table, err)
	}
	return nil
}

// Search implements VectorIndex. A missing table yields no hits.
func (x *HNSWVectorIndex) Search(_ context.Context, table string, vector []float32, limit int) ([]*VectorHit, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if limit <= 0 || isZero(vector) {
		return []*VectorHit{}, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil, ErrClosed
	}

	t, err := x.table(table)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return []*VectorHit{}, nil
	}
	if len(vector) != t.dims {
		return nil, fmt.Errorf("%w: table %s expects %d, got %d", ErrDimensionMismatch, table, t.dims, len(vector))
	}

	query := normalized(vector)

	// Room for the seed row and orphaned replacements.
	k := limit + 1 + (t.graph.Len() - len(t.keyMap))
	if k > t.graph.Len() {
		k = t.graph.Len()
	}

	nodes := t.graph.Search(query, k)
	hits := make([]*VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := t.keyMap[node.Key]
		if !ok {
			continue
		}
		rec := t.records[id]
		if rec == nil || rec.Seed {
			continue
		}
		hits = append(hits, &VectorHit{
			ID:        rec.ID,
			RowID:     rec.RowID,
			ProjectID: rec.ProjectID,
			Text:      rec.Text,
			Metadata:  rec.Metadata,
			Distance:  hnsw.CosineDistance(query, node.Value),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Contains implements VectorIndex.
func (x *HNSWVectorIndex) Contains(table, id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed || id == seedID {
		return false
	}
	t, err := x.table(table)
	if err != nil || t == nil {
		return false
	}
	_, ok := t.idMap[id]
	return ok
}

// Count implements VectorIndex.
func (x *HNSWVectorIndex) Count(table string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return 0
	}
	t, err := x.table(table)
	if err != nil || t == nil {
		return 0
	}
	return len(t.idMap) - 1
}

// Dimensions implements VectorIndex.
func (x *HNSWVectorIndex) Dimensions(table string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return 0
	}
	t, err := x.table(table)
	if err != nil || t == nil {
		return 0
	}
	return t.dims
}

// ResetTable implements VectorIndex.
func (x *HNSWVectorIndex) ResetTable(table string, dims int) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	t := x.newTable(dims)
	x.tables[table] = t
	if err := x.persist(table, t); err != nil {
		return fmt.Errorf("persist vector table %s: %w", table, err)
	}
	slog.Info("vector table reset", slog.String("table", table), slog.Int("dims", dims))
	return nil
}

// Close implements VectorIndex. Tables still dirty from an unfinished
// batch are saved first.
func (x *HNSWVectorIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	err := x.flush()
	x.closed = true
	x.tables = nil
	return err
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// normalized returns an L2-normalized copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sum float64
	for _, f := range out {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out
}
