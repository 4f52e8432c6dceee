package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// 控制接口超时
const (
	LivenessTimeout = 2 * time.Second
	MutationTimeout = 5 * time.Second
	ReloadTimeout   = 5 * time.Second
)

// API 中的策略组类型
const (
	TypeSelector    = "Selector"
	TypeURLTest     = "URLTest"
	TypeFallback    = "Fallback"
	TypeLoadBalance = "LoadBalance"
)

// ProxyInfo GET /proxies 中的单项。
type ProxyInfo struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	Now  string   `json:"now,omitempty"`
	All  []string `json:"all,omitempty"`
}

// ProxiesResponse GET /proxies 的响应。
type ProxiesResponse struct {
	Proxies map[string]ProxyInfo `json:"proxies"`
}

// StatusError 控制接口返回了非预期状态码。
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client 本地控制接口的薄封装。secret 每次请求时读取，配置更新后无需重建。
type Client struct {
	baseURL string
	http    *http.Client
	secret  func() string
}

// NewClient 创建控制接口客户端。secret 可为 nil。
func NewClient(baseURL string, httpClient *http.Client, secret func() string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		secret:  secret,
	}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.secret == nil {
		return
	}
	if secret := strings.TrimSpace(c.secret()); secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body interface{}) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	c.setAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

func statusError(method, path string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// Version GET /version。
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, cancel, err := c.do(ctx, LivenessTimeout, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(http.MethodGet, "/version", resp)
	}
	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode version: %w", err)
	}
	return payload.Version, nil
}

// Proxies GET /proxies。
func (c *Client) Proxies(ctx context.Context) (map[string]ProxyInfo, error) {
	resp, cancel, err := c.do(ctx, MutationTimeout, http.MethodGet, "/proxies", nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(http.MethodGet, "/proxies", resp)
	}
	var payload ProxiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode proxies: %w", err)
	}
	for name, info := range payload.Proxies {
		if info.Name == "" {
			info.Name = name
			payload.Proxies[name] = info
		}
	}
	return payload.Proxies, nil
}

// Proxy GET /proxies/{name}。
func (c *Client) Proxy(ctx context.Context, name string) (ProxyInfo, error) {
	path := "/proxies/" + url.PathEscape(name)
	resp, cancel, err := c.do(ctx, MutationTimeout, http.MethodGet, path, nil)
	if err != nil {
		return ProxyInfo{}, err
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProxyInfo{}, statusError(http.MethodGet, path, resp)
	}
	var info ProxyInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ProxyInfo{}, fmt.Errorf("decode proxy: %w", err)
	}
	return info, nil
}

// SelectProxy PUT /proxies/{group}，仅 204 视为成功；其他状态返回 *StatusError。
func (c *Client) SelectProxy(ctx context.Context, group, name string) error {
	path := "/proxies/" + url.PathEscape(group)
	resp, cancel, err := c.do(ctx, MutationTimeout, http.MethodPut, path, map[string]string{"name": name})
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError(http.MethodPut, path, resp)
	}
	return nil
}

// ReloadConfig PUT /configs，让内核重新加载指定路径的配置；仅 204 视为成功。
func (c *Client) ReloadConfig(ctx context.Context, configPath string) error {
	resp, cancel, err := c.do(ctx, ReloadTimeout, http.MethodPut, "/configs", map[string]string{"path": configPath})
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusError(http.MethodPut, "/configs", resp)
	}
	return nil
}
