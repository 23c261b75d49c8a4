package middleware_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/relaynet/go-relay-network/pkg/middleware"
	"github.com/relaynet/go-relay-network/pkg/request"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store is down")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store is down")
}

func (failingStore) Clear(context.Context) error {
	return errors.New("store is down")
}

func TestCache_Hit(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `{"data":{"viewer":{"id":"1"}}}`))
	store := NewMemoryStore(0)
	n = n.WithMiddlewares(Cache(CacheConfig{Store: store}))

	op := request.Operation{Name: "Viewer", Query: "query Viewer { viewer { id } }"}
	first, err := n.Query(context.Background(), op)
	require.NoError(t, err)
	second, err := n.Query(context.Background(), op)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, http.StatusOK, second.Status)
	assert.True(t, second.OK)
	assert.Equal(t, 1, transport.GetTotalCallCount())
	assert.Equal(t, 1, store.Len())

	// Different variables are a different key
	_, err = n.Query(context.Background(), request.Operation{Name: "Viewer", Query: op.Query, Variables: map[string]any{"id": "2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestCache_Mutation(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `{"data":{"ok":true}}`))
	store := NewMemoryStore(0)

	query := request.Operation{Query: "query Q { ok }"}
	mutation := request.Operation{Query: "mutation M { ok }"}

	// Mutations are not cached
	n1 := n.WithMiddlewares(Cache(CacheConfig{Store: store}))
	for range 2 {
		_, err := n1.Query(context.Background(), mutation)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, transport.GetTotalCallCount())
	assert.Equal(t, 0, store.Len())

	// Store is cleared by a mutation
	transport.ZeroCallCounters()
	n2 := n.WithMiddlewares(Cache(CacheConfig{Store: store, ClearOnMutation: true}))
	for _, op := range []request.Operation{query, query, mutation, query} {
		_, err := n2.Query(context.Background(), op)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, transport.GetTotalCallCount())
	assert.Equal(t, 1, store.Len())
}

func TestCache_FormData(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `{"data":{"ok":true}}`))
	store := NewMemoryStore(0)
	n = n.WithMiddlewares(Cache(CacheConfig{Store: store}))

	for range 2 {
		req := request.New(request.Operation{Query: "query Q { ok }"}).
			WithUploadables(map[string]request.File{"file": {Data: []byte("content")}})
		_, err := n.Execute(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, transport.GetTotalCallCount())
	assert.Equal(t, 0, store.Len())
}

func TestCache_SkipAndForce(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.ResponderFromMultipleResponses([]*http.Response{
		jsonResponse(http.StatusOK, `{"data":{"version":1}}`),
		jsonResponse(http.StatusOK, `{"data":{"version":2}}`),
		jsonResponse(http.StatusOK, `{"data":{"version":3}}`),
	}))
	store := NewMemoryStore(0)
	n = n.WithMiddlewares(Cache(CacheConfig{Store: store}))
	op := request.Operation{Query: "{ version }"}

	send := func(cfg request.CacheConfig) any {
		req := request.New(op)
		req.Cache = cfg
		res, err := n.Execute(context.Background(), req)
		require.NoError(t, err)
		return res.Data
	}

	// Skip: fetched, not stored
	assert.Equal(t, map[string]any{"version": float64(1)}, send(request.CacheConfig{Skip: true}))
	assert.Equal(t, 0, store.Len())

	// Miss: fetched and stored
	assert.Equal(t, map[string]any{"version": float64(2)}, send(request.CacheConfig{}))
	assert.Equal(t, map[string]any{"version": float64(2)}, send(request.CacheConfig{}))

	// Force: fetched and stored again
	assert.Equal(t, map[string]any{"version": float64(3)}, send(request.CacheConfig{Force: true}))
	assert.Equal(t, map[string]any{"version": float64(3)}, send(request.CacheConfig{}))

	assert.Equal(t, 3, transport.GetTotalCallCount())
}

func TestCache_ErrorsNotCached(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `{"data":null,"errors":[{"message":"foo"}]}`))
	store := NewMemoryStore(0)
	n = n.WithNoThrow(true).WithMiddlewares(Cache(CacheConfig{Store: store}))

	for range 2 {
		res, err := n.Query(context.Background(), request.Operation{Query: "{ foo }"})
		require.NoError(t, err)
		assert.True(t, res.HasErrors())
	}
	assert.Equal(t, 2, transport.GetTotalCallCount())
	assert.Equal(t, 0, store.Len())
}

func TestCache_StoreError(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `{"data":{"ok":true}}`))

	var storeErrors []string
	n = n.WithMiddlewares(Cache(CacheConfig{
		Store:           failingStore{},
		ClearOnMutation: true,
		OnStoreError: func(_ context.Context, _ *request.Request, err error) {
			storeErrors = append(storeErrors, err.Error())
		},
	}))

	res, err := n.Query(context.Background(), request.Operation{Query: "{ ok }"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, res.Data)
	_, err = n.Query(context.Background(), request.Operation{Query: "mutation { ok }"})
	require.NoError(t, err)

	assert.Equal(t, 2, transport.GetTotalCallCount())
	assert.Equal(t, []string{
		"cannot read cache: store is down",
		"cannot write cache: store is down",
		"cannot clear cache: store is down",
	}, storeErrors)
}

func TestCache_InvalidVariables(t *testing.T) {
	t.Parallel()

	n, transport := newMockedNetwork()
	transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `{"data":{"ok":true}}`))

	store := NewMemoryStore(0)
	var storeErrors []string
	n = n.WithMiddlewares(Cache(CacheConfig{
		Store: store,
		OnStoreError: func(_ context.Context, _ *request.Request, err error) {
			storeErrors = append(storeErrors, err.Error())
		},
	}))

	// The cache is bypassed, the request fails on the body encoding
	_, err := n.Query(context.Background(), request.Operation{Query: "{ ok }", Variables: map[string]any{"f": math.NaN()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot encode JSON body")
	assert.Equal(t, 0, transport.GetTotalCallCount())
	assert.Equal(t, 0, store.Len())
	require.Len(t, storeErrors, 1)
	assert.Contains(t, storeErrors[0], `cannot create cache key: cannot encode variables of the operation "unknown"`)
}

func TestCache_NilStore(t *testing.T) {
	t.Parallel()
	assert.PanicsWithError(t, "cache store cannot be nil", func() {
		Cache(CacheConfig{})
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore(2)
	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 2*time.Hour))

	value, found, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), value)

	// The entry closest to its expiration is evicted
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 3*time.Hour))
	assert.Equal(t, 2, store.Len())
	_, found, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	// Expired entry
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, found, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Len())
}
