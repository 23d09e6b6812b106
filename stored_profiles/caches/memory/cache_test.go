package memory

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"testing"

	"github.com/prebid/prebid-headertag/stored_profiles"
	"github.com/stretchr/testify/assert"
)

func TestLRURobustness(t *testing.T) {
	assertCacheRobustness(t, NewCache(256*1024, 0))
}

func TestUnboundedRobustness(t *testing.T) {
	assertCacheRobustness(t, NewCache(0, 0))
}

func TestRaceLRUConcurrency(t *testing.T) {
	doRaceTest(t, NewCache(256*1024, 0))
}

func TestRaceUnboundedConcurrency(t *testing.T) {
	doRaceTest(t, NewCache(0, 0))
}

func assertCacheRobustness(t *testing.T, cache stored_profiles.Cache) {
	t.Helper()
	ctx := context.Background()

	assert.Empty(t, cache.Get(ctx, nil))
	assert.Empty(t, cache.Get(ctx, []string{"unknown"}))

	cache.Save(ctx, map[string]json.RawMessage{
		"GrapeshotNob": json.RawMessage(`{"timeout_ms":250}`),
		"GenericOrtb":  json.RawMessage(`{"disabled":true}`),
	})
	data := cache.Get(ctx, []string{"GrapeshotNob", "unknown"})
	assert.Equal(t, map[string]json.RawMessage{"GrapeshotNob": json.RawMessage(`{"timeout_ms":250}`)}, data)

	cache.Save(ctx, map[string]json.RawMessage{"GrapeshotNob": json.RawMessage(`{"timeout_ms":300}`)})
	assert.JSONEq(t, `{"timeout_ms":300}`, string(cache.Get(ctx, []string{"GrapeshotNob"})["GrapeshotNob"]))

	cache.Invalidate(ctx, []string{"GrapeshotNob", "unknown"})
	assert.Empty(t, cache.Get(ctx, []string{"GrapeshotNob"}))
	assert.Len(t, cache.Get(ctx, []string{"GenericOrtb"}), 1)

	cache.Save(ctx, nil)
	cache.Invalidate(ctx, nil)
}

func doRaceTest(t *testing.T, cache stored_profiles.Cache) {
	done := make(chan struct{})
	reads := rand.Perm(100)
	writes := rand.Perm(100)
	invalidates := rand.Perm(100)

	go writeLots(cache, done, writes)
	go readLots(cache, done, reads)
	go invalidateLots(cache, done, invalidates)

	for i := 0; i < 3; i++ {
		<-done
	}
}

func readLots(cache stored_profiles.Cache, done chan<- struct{}, reads []int) {
	for _, i := range reads {
		cache.Get(context.Background(), []string{strconv.Itoa(i)})
	}
	done <- struct{}{}
}

func writeLots(cache stored_profiles.Cache, done chan<- struct{}, writes []int) {
	for _, i := range writes {
		cache.Save(context.Background(), map[string]json.RawMessage{strconv.Itoa(i): json.RawMessage(`{}`)})
	}
	done <- struct{}{}
}

func invalidateLots(cache stored_profiles.Cache, done chan<- struct{}, invalidates []int) {
	for _, i := range invalidates {
		cache.Invalidate(context.Background(), []string{strconv.Itoa(i)})
	}
	done <- struct{}{}
}
