package shared

import (
	"net"
	"net/http"
	"time"
)

// 常量定义
const (
	DefaultMixedPort          = 7890
	DefaultExternalController = "127.0.0.1:9090"
	DefaultControllerURL      = "http://" + DefaultExternalController
	DefaultMode               = "global"
	DefaultRule               = "MATCH,GLOBAL"

	DefaultUpdateInterval = 24 * time.Hour
	UpdateFailureBackoff  = time.Minute

	SubscriptionUserAgent = "ClashMetaForAndroid/2.8.9.Meta"
	DownloadTimeout       = 30 * time.Second
	MaxDownloadSize       = 10 << 20 // 10 MiB
	MaxRedirects          = 5

	ConfigFileName  = "config.yaml"
	PIDFileName     = "clash.pid"
	ProcessLogName  = "clash.log"
	StateFileName   = "state.json"
	LogRetention    = 7 * 24 * time.Hour
	ProcessLogLimit = 20 << 20 // 20 MiB
)

// HTTP 客户端
var (
	// HTTPClient 订阅下载客户端，遵循环境变量代理。
	HTTPClient = newHTTPClient(false)

	// HTTPClientDirect 访问本地控制接口的客户端，不走代理。
	HTTPClientDirect = newHTTPClient(true)
)

func newHTTPClient(bypassProxy bool) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}
	if bypassProxy {
		tr.Proxy = nil
	}
	return &http.Client{
		Transport: tr,
	}
}
