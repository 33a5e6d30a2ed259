// Package lastfm 通过 Last.fm Web API 解析专辑封面与购买链接.
//
// Client 只负责 HTTP 调用与解码；Resolver 在其上实现选择策略、缓存、熔断与降级，
// 对调用方永远不返回错误.
package lastfm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var (
	// ErrNotFound 服务方明确表示没有该专辑或曲目.
	ErrNotFound = errors.New("lastfm: not found")
	// ErrResolverUnavailable 服务方不可用（网络错误、5xx、熔断打开、超时）.
	ErrResolverUnavailable = errors.New("lastfm: provider unavailable")
)

// Last.fm 错误码：6 表示参数指向的资源不存在.
const codeInvalidParameters = 6

// maxBody 响应体读取上限.
const maxBody = 1 << 20

// Image 封面图片的一个尺寸.
type Image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// Album album.getInfo 的结果.
type Album struct {
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	Images []Image `json:"image"`
}

// Affiliation 一个购买渠道.
type Affiliation struct {
	SupplierName string `json:"supplierName"`
	BuyLink      string `json:"buyLink"`
	IsSearch     string `json:"isSearch"`
}

// oneOrMany 兼容 Last.fm 在只有一个元素时返回对象而不是数组.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*o = nil
		return nil
	}

	if b[0] == '[' {
		var many []T
		if err := sonic.Unmarshal(b, &many); err != nil {
			return err
		}

		*o = many

		return nil
	}

	var one T
	if err := sonic.Unmarshal(b, &one); err != nil {
		return err
	}

	*o = []T{one}

	return nil
}

type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

type albumResponse struct {
	apiError
	Album struct {
		Name   string           `json:"name"`
		Artist string           `json:"artist"`
		Image  oneOrMany[Image] `json:"image"`
	} `json:"album"`
}

type affiliationGroup struct {
	Affiliation oneOrMany[Affiliation] `json:"affiliation"`
}

type buylinksResponse struct {
	apiError
	Affiliations struct {
		Downloads affiliationGroup `json:"downloads"`
		Physicals affiliationGroup `json:"physicals"`
	} `json:"affiliations"`
}

// Client Last.fm HTTP 客户端.
type Client struct {
	apiKey     string
	baseURL    string
	country    string
	httpClient *http.Client
}

// Option 配置 Client.
type Option func(*Client)

// WithHTTPClient 替换默认的 HTTP 客户端.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient 创建客户端；apiKey 与 baseURL 不能为空.
func NewClient(apiKey, baseURL, country string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("lastfm api key required")
	}

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("lastfm base url required")
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		country:    strings.TrimSpace(country),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// AlbumInfo 调用 album.getInfo.
func (c *Client) AlbumInfo(ctx context.Context, artist, album string) (*Album, error) {
	params := url.Values{}
	params.Set("artist", artist)
	params.Set("album", album)
	params.Set("autocorrect", "1")

	var resp albumResponse
	if err := c.call(ctx, "album.getInfo", params, &resp); err != nil {
		return nil, err
	}

	if err := resp.apiError.err(); err != nil {
		return nil, err
	}

	return &Album{
		Name:   resp.Album.Name,
		Artist: resp.Album.Artist,
		Images: resp.Album.Image,
	}, nil
}

// Buylinks 调用 track.getBuylinks，返回下载渠道在前、实体渠道在后的购买链接.
func (c *Client) Buylinks(ctx context.Context, artist, title string) ([]Affiliation, error) {
	params := url.Values{}
	params.Set("artist", artist)
	params.Set("track", title)
	params.Set("autocorrect", "1")

	if c.country != "" {
		params.Set("country", c.country)
	}

	var resp buylinksResponse
	if err := c.call(ctx, "track.getBuylinks", params, &resp); err != nil {
		return nil, err
	}

	if err := resp.apiError.err(); err != nil {
		return nil, err
	}

	links := make([]Affiliation, 0, len(resp.Affiliations.Downloads.Affiliation)+len(resp.Affiliations.Physicals.Affiliation))
	links = append(links, resp.Affiliations.Downloads.Affiliation...)
	links = append(links, resp.Affiliations.Physicals.Affiliation...)

	return links, nil
}

func (e apiError) err() error {
	switch {
	case e.Code == 0:
		return nil
	case e.Code == codeInvalidParameters:
		return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
	default:
		return fmt.Errorf("%w: error %d: %s", ErrResolverUnavailable, e.Code, e.Message)
	}
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse lastfm url: %w", err)
	}

	params.Set("method", method)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)

	if err != nil {
		return fmt.Errorf("%w: %s (latency=%v): %v", ErrResolverUnavailable, method, latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrResolverUnavailable, method, err)
	}

	// Last.fm 对参数错误返回 4xx 但仍带有 JSON 错误体
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s returned %d (latency=%v)", ErrResolverUnavailable, method, resp.StatusCode, latency)
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrResolverUnavailable, method, err)
	}

	return nil
}
