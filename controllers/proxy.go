package controllers

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// ProxyPrefix is where the proxied transport sends its requests.
const ProxyPrefix = "/openai"

// modelsPath is the only proxied route that authenticates with the caller's own key.
const modelsPath = "/models"

// NewProviderProxy forwards ProxyPrefix/* to baseURL. The inbound service token is dropped
// and the server credential is attached, except on the model listing where a caller key
// sent in HeaderAPIKey is checked instead.
func NewProviderProxy(baseURL, apiKey string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			path := strings.TrimPrefix(r.In.URL.Path, ProxyPrefix)
			r.SetURL(target)
			r.Out.URL.Path = joinPath(target.Path, path)
			r.Out.URL.RawPath = ""
			r.Out.Host = target.Host

			credential := apiKey
			if callerKey := r.In.Header.Get(HeaderAPIKey); callerKey != "" && path == modelsPath {
				credential = callerKey
			}
			r.Out.Header.Del("Authorization")
			r.Out.Header.Del(HeaderAPIKey)
			if credential != "" {
				r.Out.Header.Set("Authorization", "Bearer "+credential)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("provider proxy request failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"message":"upstream request failed"}}`))
		},
	}
	return proxy, nil
}

func joinPath(base, path string) string {
	switch {
	case path == "":
		return base
	case strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/"):
		return base + path[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/"):
		return base + "/" + path
	default:
		return base + path
	}
}
