package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecordAutoTrims(t *testing.T) {
	store := NewStore(20, 10)

	for i := 0; i < 20; i++ {
		store.Record("/api/journal", time.Millisecond, http.StatusOK)
	}
	assert.Equal(t, 20, store.Len())

	store.Record("/api/mood", time.Millisecond, http.StatusOK)
	assert.Equal(t, 10, store.Len())

	recent := store.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "/api/mood", recent[0].Endpoint)
}

func TestNewStoreNormalizesBounds(t *testing.T) {
	store := NewStore(0, 0)
	assert.Equal(t, 2000, store.maxSamples)
	assert.Equal(t, 1000, store.trimTo)

	store = NewStore(100, 500)
	assert.Equal(t, 50, store.trimTo)
}

func TestStoreRecentReturnsCopy(t *testing.T) {
	store := NewStore(100, 50)
	store.Record("/a", time.Millisecond, 200)
	store.Record("/b", time.Millisecond, 200)

	recent := store.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "/a", recent[0].Endpoint)

	recent[0].Endpoint = "/mutated"
	assert.Equal(t, "/a", store.Recent(2)[0].Endpoint)
}

func TestStoreAverageResponseTime(t *testing.T) {
	store := NewStore(100, 50)

	avg, n := store.AverageResponseTime(10)
	assert.Zero(t, avg)
	assert.Zero(t, n)

	// Older slow samples fall outside the window.
	for i := 0; i < 5; i++ {
		store.Record("/slow", 10*time.Second, 200)
	}
	for i := 0; i < 10; i++ {
		store.Record("/fast", time.Duration(i+1)*100*time.Millisecond, 200)
	}

	avg, n = store.AverageResponseTime(10)
	assert.Equal(t, 10, n)
	assert.Equal(t, 550*time.Millisecond, avg)
}

func TestStoreErrorRate(t *testing.T) {
	store := NewStore(100, 50)

	rate, n := store.ErrorRate(50)
	assert.Zero(t, rate)
	assert.Zero(t, n)

	for i := 0; i < 45; i++ {
		store.Record("/ok", time.Millisecond, 200)
	}
	for i := 0; i < 5; i++ {
		store.Record("/bad", time.Millisecond, 404)
	}

	rate, n = store.ErrorRate(50)
	assert.Equal(t, 50, n)
	assert.InDelta(t, 0.10, rate, 1e-9)
}

func TestStoreRecentErrors(t *testing.T) {
	store := NewStore(100, 50)
	store.Record("/a", time.Millisecond, 500)
	store.Record("/b", time.Millisecond, 200)
	store.Record("/c", time.Millisecond, 404)
	store.Record("/d", time.Millisecond, 503)

	errs := store.RecentErrors(2)
	require.Len(t, errs, 2)
	assert.Equal(t, "/c", errs[0].Endpoint)
	assert.Equal(t, "/d", errs[1].Endpoint)

	serverErrs := store.RecentServerErrors(10)
	require.Len(t, serverErrs, 2)
	assert.Equal(t, "/a", serverErrs[0].Endpoint)
	assert.Equal(t, "/d", serverErrs[1].Endpoint)
}

func TestStoreTrim(t *testing.T) {
	store := NewStore(2000, 1000)
	for i := 0; i < 1200; i++ {
		store.Record("/api", time.Millisecond, 200)
	}
	require.Equal(t, 1200, store.Len())

	assert.Zero(t, store.TrimIfOver(1500, 500))
	assert.Equal(t, 1200, store.Len())

	assert.Equal(t, 700, store.TrimIfOver(1000, 500))
	assert.Equal(t, 500, store.Len())

	assert.Equal(t, 400, store.Trim(100))
	assert.Equal(t, 100, store.Len())

	assert.Zero(t, store.Trim(500))
	assert.Equal(t, 100, store.Len())
}

func TestStoreConcurrentRecord(t *testing.T) {
	store := NewStore(10000, 5000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				store.Record("/api", time.Millisecond, 200)
				_, _ = store.ErrorRate(50)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, store.Len())
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	store := NewStore(100, 50)

	r := chi.NewRouter()
	r.Use(store.Middleware)
	r.Get("/api/journal/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/api/mood", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/journal/1", "/api/journal/2", "/api/mood"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	samples := store.Recent(10)
	require.Len(t, samples, 3)
	assert.Equal(t, "/api/journal/{id}", samples[0].Endpoint)
	assert.Equal(t, http.StatusNotFound, samples[0].StatusCode)
	assert.Equal(t, "/api/journal/{id}", samples[1].Endpoint)
	assert.Equal(t, "/api/mood", samples[2].Endpoint)
	assert.Equal(t, http.StatusOK, samples[2].StatusCode)
}

func TestMiddlewareRecordsPanickingHandler(t *testing.T) {
	store := NewStore(100, 50)

	r := chi.NewRouter()
	r.Use(store.Middleware)
	r.Post("/api/journal", func(http.ResponseWriter, *http.Request) {
		panic("journal boom 42")
	})

	assert.PanicsWithValue(t, "journal boom 42", func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/journal", nil))
	})

	samples := store.Recent(10)
	require.Len(t, samples, 1)
	assert.Equal(t, "/api/journal", samples[0].Endpoint)
	assert.Equal(t, http.StatusInternalServerError, samples[0].StatusCode)

	rate, n := store.ErrorRate(10)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, rate)
}
