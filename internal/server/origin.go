package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originPolicy decides which browser origins may open a connection.
// Requests without an Origin header come from non-browser clients and are
// always allowed.
type originPolicy struct {
	// sameHost applies when no origins are configured: the Origin host
	// must match the request Host.
	sameHost bool
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string, lg *zap.Logger) originPolicy {
	normalized, allowAll := normalizeOrigins(origins, lg)
	p := originPolicy{
		sameHost: len(normalized) == 0 && !allowAll,
		allowAll: allowAll,
		allowed:  make(map[string]struct{}, len(normalized)),
	}
	for _, origin := range normalized {
		p.allowed[origin] = struct{}{}
	}
	return p
}

func normalizeOrigins(origins []string, lg *zap.Logger) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			lg.Warn("Ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

func (p originPolicy) allows(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}

	if p.allowAll {
		return true
	}

	parsed, err := url.Parse(originHeader)
	if err != nil || parsed.Host == "" {
		return false
	}

	if p.sameHost {
		return strings.EqualFold(parsed.Host, r.Host)
	}

	_, exists := p.allowed[strings.ToLower(parsed.Scheme)+"://"+strings.ToLower(parsed.Host)]
	return exists
}
