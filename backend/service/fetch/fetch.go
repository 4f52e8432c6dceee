package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clashsub/backend/domain"
	"clashsub/backend/service/shared"
	"clashsub/backend/service/subscription"
)

var (
	// ErrTooManyRedirects 重定向次数超过上限。
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrInvalidURL 订阅地址不是 http/https。
	ErrInvalidURL = errors.New("subscription url must be http or https")
	// ErrResponseTooLarge 响应体超过大小上限。
	ErrResponseTooLarge = errors.New("response body too large")
)

// DownloadError 下载订阅失败（网络错误或非 2xx 状态）。
type DownloadError struct {
	URL     string
	Status  int
	Timeout bool
	Cause   error
}

func (e *DownloadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Status != 0:
		return fmt.Sprintf("download subscription: unexpected status %d", e.Status)
	case e.Timeout:
		return fmt.Sprintf("download subscription: timeout: %v", e.Cause)
	default:
		return fmt.Sprintf("download subscription: %v", e.Cause)
	}
}

func (e *DownloadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Options 下载参数，零值使用默认。
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = shared.SubscriptionUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = shared.DownloadTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = shared.MaxDownloadSize
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = shared.MaxRedirects
	}
	return o
}

// Result 一次订阅拉取的产物。
//
// Config 为结构化配置（可能来自 flag=clash 重试），Nodes 为主请求中解析出的分享链接节点。
type Result struct {
	Body          []byte
	Format        subscription.Format
	Config        *domain.SubscriptionConfig
	Nodes         []domain.ProxyNode
	UsedFlagRetry bool
}

// Fetcher 订阅下载器。
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New 创建下载器。client 为 nil 时使用 shared.HTTPClient 的传输层。
func New(client *http.Client, opts Options) *Fetcher {
	opts = opts.withDefaults()
	base := shared.HTTPClient
	if client != nil {
		base = client
	}
	c := *base
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > opts.MaxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}
	return &Fetcher{client: &c, opts: opts}
}

// Fetch 下载并识别订阅。
//
//  1. 原地址 GET，失败直接返回 DownloadError；
//  2. 没有得到结构化配置时，追加 flag=clash 再请求一次，失败静默忽略；
//  3. 两次都没有结构化配置且没有节点时返回 UnparseableError。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &DownloadError{URL: rawURL, Cause: ErrInvalidURL}
	}

	body, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("[Fetch] subscription body length: %d", len(body))

	primary := subscription.Detect(body)
	res := &Result{Body: body, Format: primary.Format, Config: primary.Config, Nodes: primary.Nodes}
	if res.Config != nil {
		logrus.Infof("[Fetch] detected %s subscription", primary.Format)
		return res, nil
	}
	if len(res.Nodes) > 0 {
		logrus.Infof("[Fetch] detected %s subscription with %d parsable nodes", primary.Format, len(res.Nodes))
	}

	retryURL := WithClashFlag(rawURL)
	logrus.Infof("[Fetch] retrying with flag=clash")
	if retryBody, err := f.get(ctx, retryURL); err != nil {
		logrus.Debugf("[Fetch] flag=clash retry failed: %v", err)
	} else {
		retry := subscription.Detect(retryBody)
		if retry.Config != nil {
			logrus.Infof("[Fetch] flag=clash retry returned %s subscription", retry.Format)
			res.Config = retry.Config
			res.UsedFlagRetry = true
		}
	}

	if res.Config == nil && len(res.Nodes) == 0 {
		logrus.Errorf("[Fetch] cannot parse subscription, first 100 chars: %s", subscription.Snippet(string(body)))
		return nil, subscription.NewUnparseableError(body)
	}
	return res, nil
}

// WithClashFlag 追加 flag=clash 查询参数。
func WithClashFlag(rawURL string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&flag=clash"
	}
	return rawURL + "?flag=clash"
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Cause: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		var ne net.Error
		timeout := errors.As(err, &ne) && ne.Timeout()
		return nil, &DownloadError{URL: rawURL, Timeout: timeout || errors.Is(err, context.DeadlineExceeded), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &DownloadError{URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Cause: err}
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, &DownloadError{URL: rawURL, Cause: ErrResponseTooLarge}
	}
	return []byte(strings.TrimSpace(string(data))), nil
}
