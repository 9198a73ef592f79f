package llm

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aezizhu/CellGen/internal/config"
)

func newHTTPClient(cfg config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(cfg.Proxy)
	// One call per formula evaluation; a small idle pool is plenty.
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second
	return &http.Client{
		Timeout:   time.Duration(cfg.Timeout()) * time.Second,
		Transport: transport,
	}
}

func proxyFunc(raw string) func(*http.Request) (*url.URL, error) {
	if u := parseProxy(raw); u != nil {
		return http.ProxyURL(u)
	}
	return http.ProxyFromEnvironment
}

func parseProxy(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}
