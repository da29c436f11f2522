package relay

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidrelay/work/cache"
	"vidrelay/work/client"
	"vidrelay/work/config"
	"vidrelay/work/errs"
	"vidrelay/work/resolver"
)

type fakeResolver struct {
	url         string
	info        *resolver.MediaInfo
	err         error
	streamCalls int
	infoCalls   int
	lastOpts    resolver.Options
}

func (f *fakeResolver) ResolveStream(_ context.Context, id string, opts resolver.Options) (*resolver.ResolvedStream, error) {
	f.streamCalls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &resolver.ResolvedStream{URL: f.url, ResolvedAt: time.Now()}, nil
}

func (f *fakeResolver) ResolveInfo(_ context.Context, id string) (*resolver.MediaInfo, error) {
	f.infoCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeResolver) Search(_ context.Context, query string, limit int) ([]resolver.MediaInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []resolver.MediaInfo{{ID: "r1", Title: query}}, nil
}

func newTestService(t *testing.T, fake *fakeResolver, cached bool) *Service {
	t.Helper()

	cfg := testConfig()
	cfg.WorkerThreads = 2
	cfg.CacheTTL = time.Hour
	cfg.MetadataCacheTTL = time.Hour
	cfg.Resolver = config.ResolverOptions{
		FormatPreference: "best[height<=720]",
		LiveFormat:       "95/96/best",
	}

	var c *cache.Cache
	if cached {
		store, err := cache.NewMemoryStore()
		require.NoError(t, err)
		c = cache.New(store, true)
	} else {
		c = cache.New(nil, false)
	}

	svc, err := NewService(cfg, client.New(cfg), c, fake)
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestResolveStreamOnDemandUsesCache(t *testing.T) {
	fake := &fakeResolver{url: "https://origin.example/video.mp4"}
	svc := newTestService(t, fake, true)

	streamURL, cached, err := svc.ResolveStream(context.Background(), "vid1", errs.KindOnDemand, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "https://origin.example/video.mp4", streamURL)
	assert.Equal(t, "best[height<=720]", fake.lastOpts.Format)

	streamURL, cached, err = svc.ResolveStream(context.Background(), "vid1", errs.KindOnDemand, true)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "https://origin.example/video.mp4", streamURL)
	assert.Equal(t, 1, fake.streamCalls, "cache hit must not re-resolve")
}

func TestResolveStreamLiveBypassesCache(t *testing.T) {
	fake := &fakeResolver{url: "https://origin.example/live.m3u8"}
	svc := newTestService(t, fake, true)

	_, cached, err := svc.ResolveStream(context.Background(), "live1", errs.KindLive, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "95/96/best", fake.lastOpts.Format)
	assert.True(t, fake.lastOpts.Live)

	_, _, err = svc.ResolveStream(context.Background(), "live1", errs.KindLive, true)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.streamCalls, "live lookups always re-resolve")
}

func TestResolveStreamUncachedAlwaysResolves(t *testing.T) {
	fake := &fakeResolver{url: "https://origin.example/video.mp4"}
	svc := newTestService(t, fake, true)

	for i := 0; i < 2; i++ {
		_, cached, err := svc.ResolveStream(context.Background(), "vid1", errs.KindOnDemand, false)
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, 2, fake.streamCalls, "uncached lookups must hit the resolver every time")
}

func TestResolveStreamClassifiesFailures(t *testing.T) {
	fake := &fakeResolver{err: errors.New("ERROR: Private video")}
	svc := newTestService(t, fake, false)

	_, _, err := svc.ResolveStream(context.Background(), "vid1", errs.KindOnDemand, true)
	var se *errs.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errs.CodeVideoPrivate, se.Code)
	assert.Equal(t, http.StatusForbidden, se.Status)
}

func TestResolveInfoCachesMetadata(t *testing.T) {
	fake := &fakeResolver{info: &resolver.MediaInfo{ID: "vid1", Title: "Title", Author: "Author", Duration: 120}}
	svc := newTestService(t, fake, true)

	info, cached, err := svc.ResolveInfo(context.Background(), "vid1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "Title", info.Title)

	info, cached, err = svc.ResolveInfo(context.Background(), "vid1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "Title", info.Title)
	assert.Equal(t, int64(120), info.Duration)
	assert.Equal(t, 1, fake.infoCalls)
}

func TestSearchPassesThrough(t *testing.T) {
	fake := &fakeResolver{}
	svc := newTestService(t, fake, false)

	results, err := svc.Search(context.Background(), "lofi", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lofi", results[0].Title)
}
