package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// URLConfig configures the URL middleware.
type URLConfig struct {
	// URL is a static endpoint URL.
	URL string
	// URLFn resolves the endpoint URL per request, it takes precedence over the URL.
	URLFn func(ctx context.Context, req *request.Request) (string, error)
	// Method overrides the HTTP method, if set.
	Method string
	// Header is merged into the request header, values already set in the request are kept.
	Header http.Header
	// HeaderFn resolves additional headers per request, they are merged as the Header.
	HeaderFn func(ctx context.Context, req *request.Request) (http.Header, error)
}

// URL sets the endpoint, the method and the headers of the request.
//
// A GET request has no body: the operation is moved to the query parameters of the URL.
func URL(cfg URLConfig) network.Middleware {
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			if cfg.URLFn != nil {
				v, err := cfg.URLFn(ctx, req)
				if err != nil {
					return nil, fmt.Errorf(`cannot resolve url of the operation "%s": %w`, req.OperationName(), err)
				}
				req.URL = v
			} else if cfg.URL != "" {
				req.URL = cfg.URL
			}

			if cfg.Method != "" {
				req.Method = cfg.Method
			}
			req.Method = strings.ToUpper(req.Method)

			if req.Header == nil {
				req.Header = make(http.Header)
			}
			mergeHeader(req.Header, cfg.Header)
			if cfg.HeaderFn != nil {
				header, err := cfg.HeaderFn(ctx, req)
				if err != nil {
					return nil, fmt.Errorf(`cannot resolve headers of the operation "%s": %w`, req.OperationName(), err)
				}
				mergeHeader(req.Header, header)
			}

			if req.Method == http.MethodGet && !req.IsFormData() {
				u, err := withQueryParams(req.URL, req.Operation.QueryParams())
				if err != nil {
					return nil, err
				}
				req.URL = u
				req.Body = nil
			}

			return next(ctx, req)
		}
	}
}

func mergeHeader(target, source http.Header) {
	for k, values := range source {
		if target.Get(k) != "" {
			continue
		}
		for _, v := range values {
			target.Add(k, v)
		}
	}
}

func withQueryParams(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf(`request url "%s" is not valid: %w`, rawURL, err)
	}
	query := u.Query()
	for k, values := range params {
		query[k] = values
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
