package kratosecho

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/atjeff/kratos-echo/internal/domain"
)

// KeyKind tells how a key was given.
type KeyKind string

const (
	KeyURL  KeyKind = "url"
	KeyTest KeyKind = "test"
	KeyLive KeyKind = "live"
)

const (
	testKeyPrefix = "pk_test_"
	liveKeyPrefix = "pk_live_"
)

// Key identifies the provider's public API.
type Key struct {
	Kind        KeyKind
	FrontendAPI string // base URL without trailing slash
}

// ParseKey accepts a http(s) URL or a publishable key "pk_test_<b64>" /
// "pk_live_<b64>", where the payload is base64("<host>$").
func ParseKey(key string) (*Key, error) {
	key = strings.TrimSpace(key)
	switch {
	case strings.HasPrefix(key, "http://"), strings.HasPrefix(key, "https://"):
		u, err := url.Parse(key)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: malformed url", domain.ErrInvalidKey)
		}
		return &Key{Kind: KeyURL, FrontendAPI: strings.TrimRight(u.String(), "/")}, nil

	case strings.HasPrefix(key, testKeyPrefix):
		return parsePublishable(KeyTest, strings.TrimPrefix(key, testKeyPrefix))

	case strings.HasPrefix(key, liveKeyPrefix):
		return parsePublishable(KeyLive, strings.TrimPrefix(key, liveKeyPrefix))

	default:
		return nil, fmt.Errorf("%w: expected a url or a pk_test_/pk_live_ key", domain.ErrInvalidKey)
	}
}

func parsePublishable(kind KeyKind, payload string) (*Key, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64", domain.ErrInvalidKey)
	}

	host, ok := strings.CutSuffix(string(raw), "$")
	if !ok || host == "" || strings.ContainsAny(host, "/?#@ ") {
		return nil, fmt.Errorf("%w: payload is not a host", domain.ErrInvalidKey)
	}

	scheme := "https"
	if kind == KeyTest && isLoopback(host) {
		scheme = "http"
	}
	return &Key{Kind: kind, FrontendAPI: scheme + "://" + host}, nil
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// EncodeKey builds a publishable key for host, e.g. for tests and the
// development provider.
func EncodeKey(kind KeyKind, host string) string {
	prefix := liveKeyPrefix
	if kind == KeyTest {
		prefix = testKeyPrefix
	}
	return prefix + base64.StdEncoding.EncodeToString([]byte(host+"$"))
}
