package lastfm

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/octavia/pkg/cache"
	"github.com/yeisme/octavia/pkg/configs"
	"github.com/yeisme/octavia/pkg/metrics"
)

// CachePrefix 解析结果在 KV 中的命名空间.
const CachePrefix = "lastfm"

const (
	kindArtwork = "artwork"
	kindBuylink = "buylink"
)

// 购买链接的供应商优先级.
var preferredSuppliers = []string{"iTunes", "Amazon MP3"}

// Provider Resolver 依赖的服务方接口，*Client 实现了它.
type Provider interface {
	AlbumInfo(ctx context.Context, artist, album string) (*Album, error)
	Buylinks(ctx context.Context, artist, title string) ([]Affiliation, error)
}

var _ Provider = (*Client)(nil)

// Resolver 解析封面与购买链接. 所有失败在内部吸收：封面回落到占位路径，购买链接回落到 nil.
type Resolver struct {
	provider Provider
	cache    *cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	missing  string
	breaker  *gobreaker.CircuitBreaker
	group    singleflight.Group
	logger   zerolog.Logger
}

// ResolverOptions 构造 Resolver 的参数.
type ResolverOptions struct {
	// Provider 为 nil 时解析器处于禁用状态，直接返回占位值
	Provider Provider
	// Cache 为 nil 时不缓存
	Cache    *cache.Cache
	CacheTTL time.Duration
	// Timeout 单次服务方调用的超时
	Timeout time.Duration
	// MissingArtwork 封面占位路径
	MissingArtwork string
	Breaker        configs.CircuitBreakerConfig
	Logger         zerolog.Logger
}

// NewResolver 创建解析器.
func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		provider: opts.Provider,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		timeout:  opts.Timeout,
		missing:  opts.MissingArtwork,
		logger:   opts.Logger,
	}

	if opts.Breaker.Enabled {
		r.breaker = newBreaker(opts.Breaker, r.logger)
	}

	return r
}

func newBreaker(cfg configs.CircuitBreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lastfm",
		MaxRequests: cfg.MaxRequestsInHalf,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

// Enabled 报告是否配置了服务方.
func (r *Resolver) Enabled() bool {
	return r.provider != nil
}

// MissingArtwork 返回封面占位路径.
func (r *Resolver) MissingArtwork() string {
	return r.missing
}

// ResolveArtwork 返回专辑封面 URL，任何失败或空结果都返回占位路径.
func (r *Resolver) ResolveArtwork(ctx context.Context, artist, album string) string {
	url, err := r.resolve(ctx, kindArtwork, artist, album, func(ctx context.Context) (string, error) {
		info, err := r.provider.AlbumInfo(ctx, artist, album)
		if err != nil {
			return "", err
		}

		return SelectArtwork(info.Images), nil
	})
	if err != nil || url == "" {
		return r.missing
	}

	return url
}

// ResolvePurchaseLink 返回购买链接，没有或失败时返回 nil.
func (r *Resolver) ResolvePurchaseLink(ctx context.Context, artist, title string) *string {
	link, err := r.resolve(ctx, kindBuylink, artist, title, func(ctx context.Context) (string, error) {
		links, err := r.provider.Buylinks(ctx, artist, title)
		if err != nil {
			return "", err
		}

		return SelectBuylink(links), nil
	})
	if err != nil || link == "" {
		return nil
	}

	return &link
}

// resolve 依次走缓存、singleflight、熔断与超时. ErrNotFound 视为空结果并缓存.
func (r *Resolver) resolve(ctx context.Context, kind, a, b string,
	fetch func(ctx context.Context) (string, error),
) (string, error) {
	if r.provider == nil {
		metrics.ResolverTotal.WithLabelValues(kind, metrics.OutcomeFallback).Inc()
		return "", ErrResolverUnavailable
	}

	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		metrics.ResolverTotal.WithLabelValues(kind, metrics.OutcomeFallback).Inc()
		return "", nil
	}

	key := cacheKey(kind, a, b)

	if r.cache != nil {
		if v, err := cache.Get[string](ctx, r.cache, key); err == nil {
			metrics.ResolverTotal.WithLabelValues(kind, metrics.OutcomeCached).Inc()
			return v, nil
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.fetch(ctx, fetch)
	})
	if err != nil {
		metrics.ResolverTotal.WithLabelValues(kind, metrics.OutcomeFallback).Inc()
		r.logger.Warn().Err(err).Str("kind", kind).Str("artist", a).Str("subject", b).Msg("resolver fallback")

		return "", err
	}

	result, _ := v.(string)

	if r.cache != nil {
		if err := cache.Set(ctx, r.cache, key, result, r.cacheTTL); err != nil {
			r.logger.Debug().Err(err).Str("key", key).Msg("resolver cache write failed")
		}
	}

	metrics.ResolverTotal.WithLabelValues(kind, metrics.OutcomeOK).Inc()

	return result, nil
}

func (r *Resolver) fetch(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	call := func() (any, error) {
		if r.timeout > 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		v, err := fetch(ctx)
		// 不存在是正常结果，不计入熔断失败
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}

		return v, err
	}

	var (
		v   any
		err error
	)

	if r.breaker != nil {
		v, err = r.breaker.Execute(call)
	} else {
		v, err = call()
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", errors.Join(ErrResolverUnavailable, err)
		}

		return "", err
	}

	s, _ := v.(string)

	return s, nil
}

// cacheKey 对大小写不敏感的 (kind, a, b) 生成固定长度的键.
func cacheKey(kind, a, b string) string {
	h := xxhash.New()
	_, _ = h.WriteString(strings.ToLower(a))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strings.ToLower(b))

	return kind + "." + strconv.FormatUint(h.Sum64(), 16)
}

// SelectArtwork 优先返回内容非空的 extralarge 尺寸，其次第一张非空图片，否则返回空串.
func SelectArtwork(images []Image) string {
	for _, img := range images {
		if img.Size == "extralarge" && strings.TrimSpace(img.URL) != "" {
			return strings.TrimSpace(img.URL)
		}
	}

	for _, img := range images {
		if u := strings.TrimSpace(img.URL); u != "" {
			return u
		}
	}

	return ""
}

// SelectBuylink 按 iTunes、Amazon MP3 的优先级返回购买链接，否则返回空串.
func SelectBuylink(links []Affiliation) string {
	for _, supplier := range preferredSuppliers {
		for _, l := range links {
			if strings.EqualFold(l.SupplierName, supplier) && strings.TrimSpace(l.BuyLink) != "" {
				return strings.TrimSpace(l.BuyLink)
			}
		}
	}

	return ""
}
