package embed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ConcurrentColdCallsInitializeOnce(t *testing.T) {
	// Given: a slow factory that counts constructions
	var builds atomic.Int64
	release := make(chan struct{})
	factory := func(ctx context.Context, key string) (Embedder, error) {
		builds.Add(1)
		<-release
		return NewStaticEmbedder(16), nil
	}
	p := NewProvider(factory, "static-16")
	defer func() { _ = p.Close() }()

	// When: many callers embed before the model is warm
	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Embed(context.Background(), "warm me")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	// Then: the factory ran once and every caller succeeded
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), builds.Load())
	assert.True(t, p.IsWarm("static-16"))
	assert.True(t, p.IsWarm(""), "empty key means default")
}

func TestProvider_CancelledCallerDoesNotFailOthers(t *testing.T) {
	// Given: a slow factory that honours its context
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(ctx context.Context, key string) (Embedder, error) {
		close(started)
		select {
		case <-release:
			return NewStaticEmbedder(8), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := NewProvider(factory, "k")
	defer func() { _ = p.Close() }()

	// When: the first caller starts the warm-up and then cancels
	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := p.Pipeline(ctxA, "k")
		errA <- err
	}()
	<-started

	errB := make(chan error, 1)
	go func() {
		_, err := p.Pipeline(context.Background(), "k")
		errB <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	// Then: only the cancelled caller gives up
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)
	require.NoError(t, <-errB)
	assert.True(t, p.IsWarm("k"))
}

func TestProvider_FailedInitIsRetried(t *testing.T) {
	var calls atomic.Int64
	factory := func(ctx context.Context, key string) (Embedder, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("model not loaded")
		}
		return NewStaticEmbedder(8), nil
	}
	p := NewProvider(factory, "k")

	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, p.IsWarm("k"))

	_, err = p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, p.IsWarm("k"))
	assert.Equal(t, int64(2), calls.Load())
}

func TestProvider_PipelinePerKey(t *testing.T) {
	p := NewProvider(NewFactory(FactoryOptions{}), "static-384")
	ctx := context.Background()

	dims, err := p.Dimensions(ctx, "static-768")
	require.NoError(t, err)
	assert.Equal(t, 768, dims)

	v, err := p.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Len(t, v, 384)

	assert.ElementsMatch(t, []string{"static-384", "static-768"}, p.WarmKeys())
	assert.Equal(t, "static-384", p.DefaultKey())
}

func TestProvider_OutputIsNormalized(t *testing.T) {
	inner := newMockEmbedder(4)
	p := NewProvider(func(context.Context, string) (Embedder, error) { return inner, nil }, "m")

	v, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-6)
}

func TestProvider_EmbedBatchWithNormalizes(t *testing.T) {
	inner := newMockEmbedder(4)
	p := NewProvider(func(context.Context, string) (Embedder, error) { return inner, nil }, "m")

	vecs, err := p.EmbedBatchWith(context.Background(), "m", []string{"a", "b"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-6)
	}
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestProvider_CloseClosesPipelines(t *testing.T) {
	inner := newMockEmbedder(4)
	p := NewProvider(func(context.Context, string) (Embedder, error) { return inner, nil }, "m")
	_, err := p.Pipeline(context.Background(), "m")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, inner.closed.Load())
	assert.False(t, p.IsWarm("m"))

	_, err = p.Embed(context.Background(), "x")
	assert.Error(t, err)
}
