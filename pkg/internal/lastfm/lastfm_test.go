package lastfm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/octavia/pkg/cache"
	"github.com/yeisme/octavia/pkg/configs"
	"github.com/yeisme/octavia/pkg/internal/lastfm"
	"github.com/yeisme/octavia/pkg/internal/storage/kv"
)

const missing = "/img/missing.png"

const albumJSON = `{"album":{"name":"LP","artist":"Band","image":[
	{"#text":"https://img/small.png","size":"small"},
	{"#text":"","size":"extralarge"},
	{"#text":"https://img/xl.png","size":"extralarge"}
]}}`

const buylinksJSON = `{"affiliations":{
	"physicals":{"affiliation":{"supplierName":"Amazon","buyLink":"https://amazon/cd"}},
	"downloads":{"affiliation":[
		{"supplierName":"Amazon MP3","buyLink":"https://amazon/mp3"},
		{"supplierName":"iTunes","buyLink":"https://itunes/song"}
	]}
}}`

// fakeServer 按 method 参数返回固定响应，并统计请求次数.
func fakeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		if r.URL.Query().Get("api_key") != "key" || r.URL.Query().Get("format") != "json" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Query().Get("method") {
	case "album.getInfo":
		_, _ = w.Write([]byte(albumJSON))
	case "track.getBuylinks":
		_, _ = w.Write([]byte(buylinksJSON))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newResolver(t *testing.T, srv *httptest.Server, withCache bool, breaker configs.CircuitBreakerConfig) *lastfm.Resolver {
	t.Helper()

	client, err := lastfm.NewClient("key", srv.URL, "united states")
	if err != nil {
		t.Fatal(err)
	}

	opts := lastfm.ResolverOptions{
		Provider:       client,
		CacheTTL:       time.Hour,
		Timeout:        200 * time.Millisecond,
		MissingArtwork: missing,
		Breaker:        breaker,
		Logger:         zerolog.Nop(),
	}

	if withCache {
		store, err := kv.NewKVStore(context.Background(), kv.KVTypeMemory, nil)
		if err != nil {
			t.Fatal(err)
		}

		opts.Cache = cache.NewCache(store, lastfm.CachePrefix)
	}

	return lastfm.NewResolver(opts)
}

func TestSelectArtwork(t *testing.T) {
	cases := []struct {
		name   string
		images []lastfm.Image
		want   string
	}{
		{"prefers extralarge", []lastfm.Image{{URL: "s", Size: "small"}, {URL: "xl", Size: "extralarge"}}, "xl"},
		{"skips empty extralarge", []lastfm.Image{{URL: "", Size: "extralarge"}, {URL: "m", Size: "medium"}}, "m"},
		{"first non-empty", []lastfm.Image{{URL: " ", Size: "small"}, {URL: "l", Size: "large"}}, "l"},
		{"none", nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lastfm.SelectArtwork(tc.images); got != tc.want {
				t.Errorf("SelectArtwork = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSelectBuylink(t *testing.T) {
	amazon := lastfm.Affiliation{SupplierName: "Amazon MP3", BuyLink: "a"}
	itunes := lastfm.Affiliation{SupplierName: "iTunes", BuyLink: "i"}
	other := lastfm.Affiliation{SupplierName: "7digital", BuyLink: "o"}

	if got := lastfm.SelectBuylink([]lastfm.Affiliation{amazon, itunes}); got != "i" {
		t.Errorf("got %q, want iTunes", got)
	}

	if got := lastfm.SelectBuylink([]lastfm.Affiliation{other, amazon}); got != "a" {
		t.Errorf("got %q, want Amazon MP3", got)
	}

	if got := lastfm.SelectBuylink([]lastfm.Affiliation{other}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestResolve(t *testing.T) {
	srv, _ := fakeServer(t, okHandler)
	r := newResolver(t, srv, false, configs.CircuitBreakerConfig{})
	ctx := context.Background()

	if got := r.ResolveArtwork(ctx, "Band", "LP"); got != "https://img/xl.png" {
		t.Errorf("artwork = %q", got)
	}

	link := r.ResolvePurchaseLink(ctx, "Band", "Song")
	if link == nil || *link != "https://itunes/song" {
		t.Errorf("buylink = %v", link)
	}
}

// TestResolveSingleAffiliation 测试只有一个购买渠道时返回对象而不是数组.
func TestResolveSingleAffiliation(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"affiliations":{"downloads":{"affiliation":{"supplierName":"Amazon MP3","buyLink":"https://amazon/mp3"}}}}`))
	})
	r := newResolver(t, srv, false, configs.CircuitBreakerConfig{})

	link := r.ResolvePurchaseLink(context.Background(), "Band", "Song")
	if link == nil || *link != "https://amazon/mp3" {
		t.Errorf("buylink = %v", link)
	}
}

func TestResolveFallbackOnServerError(t *testing.T) {
	srv, _ := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r := newResolver(t, srv, true, configs.CircuitBreakerConfig{})
	ctx := context.Background()

	if got := r.ResolveArtwork(ctx, "Band", "LP"); got != missing {
		t.Errorf("artwork = %q, want sentinel", got)
	}

	if link := r.ResolvePurchaseLink(ctx, "Band", "Song"); link != nil {
		t.Errorf("buylink = %q, want nil", *link)
	}
}

// TestResolveNotFoundCached 测试"不存在"结果被缓存，第二次不再请求服务方.
func TestResolveNotFoundCached(t *testing.T) {
	srv, hits := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":6,"message":"Album not found"}`))
	})
	r := newResolver(t, srv, true, configs.CircuitBreakerConfig{})
	ctx := context.Background()

	for range 3 {
		if got := r.ResolveArtwork(ctx, "Band", "LP"); got != missing {
			t.Fatalf("artwork = %q, want sentinel", got)
		}
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("provider hits = %d, want 1", n)
	}
}

func TestResolveTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	r := newResolver(t, srv, false, configs.CircuitBreakerConfig{})

	start := time.Now()
	if got := r.ResolveArtwork(context.Background(), "Band", "LP"); got != missing {
		t.Errorf("artwork = %q, want sentinel", got)
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("resolve took %v, timeout not applied", elapsed)
	}
}

// TestResolveBreakerOpens 测试连续失败后熔断，不再请求服务方.
func TestResolveBreakerOpens(t *testing.T) {
	srv, hits := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r := newResolver(t, srv, false, configs.CircuitBreakerConfig{
		Enabled:           true,
		FailureRate:       0.5,
		MinRequests:       2,
		IntervalSeconds:   60,
		TimeoutSeconds:    60,
		MaxRequestsInHalf: 1,
	})
	ctx := context.Background()

	for range 5 {
		if got := r.ResolveArtwork(ctx, "Band", "LP"); got != missing {
			t.Fatalf("artwork = %q, want sentinel", got)
		}
	}

	if n := hits.Load(); n != 2 {
		t.Errorf("provider hits = %d, want 2 before the breaker opened", n)
	}
}

func TestResolverDisabled(t *testing.T) {
	r := lastfm.NewResolver(lastfm.ResolverOptions{MissingArtwork: missing, Logger: zerolog.Nop()})

	if r.Enabled() {
		t.Error("resolver without provider should be disabled")
	}

	if got := r.ResolveArtwork(context.Background(), "Band", "LP"); got != missing {
		t.Errorf("artwork = %q", got)
	}

	if link := r.ResolvePurchaseLink(context.Background(), "Band", "Song"); link != nil {
		t.Errorf("buylink = %q", *link)
	}
}
