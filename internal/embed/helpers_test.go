package embed

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// mockEmbedder counts calls and returns a fixed vector.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	closed     atomic.Bool
	dims       int
	name       string
	vector     []float32
	err        error
}

func newMockEmbedder(dims int) *mockEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i+1) * 0.5
	}
	return &mockEmbedder{dims: dims, name: "mock-model", vector: vec}
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                 { return m.dims }
func (m *mockEmbedder) ModelName() string               { return m.name }
func (m *mockEmbedder) Available(_ context.Context) bool { return !m.closed.Load() }

func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

var errMock = errors.New("mock failure")
