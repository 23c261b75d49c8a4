package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// ErrEmptyToken is returned if the token source returns an empty token and AllowEmptyToken is false.
var ErrEmptyToken = errors.New("auth token is empty")

// DefaultTokenExpiryLeeway - a JWT token is refreshed this long before its expiration.
const DefaultTokenExpiryLeeway = 10 * time.Second

// AuthConfig configures the Auth middleware.
type AuthConfig struct {
	// TokenSource provides tokens, it is called whenever a new token is needed.
	TokenSource oauth2.TokenSource
	// Header is the name of the header, "Authorization" is used if empty.
	Header string
	// AllowEmptyToken sends the request without the header if the token is empty.
	AllowEmptyToken bool
	// ExpiryLeeway is subtracted from the "exp" claim of a JWT token, DefaultTokenExpiryLeeway is used if zero.
	ExpiryLeeway time.Duration
}

// Auth sets the token to the request header.
//
// The token is kept between requests. It is refreshed when it is invalid or when it is an expired JWT.
// If the server responds 401 Unauthorized, the token is refreshed and the request is sent once again.
func Auth(cfg AuthConfig) network.Middleware {
	if cfg.TokenSource == nil {
		panic(fmt.Errorf("token source cannot be nil"))
	}
	if cfg.Header == "" {
		cfg.Header = "Authorization"
	}
	if cfg.ExpiryLeeway == 0 {
		cfg.ExpiryLeeway = DefaultTokenExpiryLeeway
	}

	t := &authTokens{config: cfg}
	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			token, err := t.token(false)
			if err != nil {
				return nil, err
			}
			if err := t.setHeader(req, token); err != nil {
				return nil, err
			}

			res, err := next(ctx, req)

			var reqErr *network.RequestError
			if !errors.As(err, &reqErr) || reqErr.StatusCode() != http.StatusUnauthorized {
				return res, err
			}

			// Refresh once
			token, err = t.token(true)
			if err != nil {
				return nil, err
			}
			if err := t.setHeader(req, token); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

type authTokens struct {
	config AuthConfig
	lock   sync.Mutex
	last   *oauth2.Token
}

func (t *authTokens) token(refresh bool) (*oauth2.Token, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !refresh && t.last != nil && t.last.Valid() && !isExpiredJWT(t.last.AccessToken, t.config.ExpiryLeeway) {
		return t.last, nil
	}

	token, err := t.config.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("cannot get auth token: %w", err)
	}
	t.last = token
	return token, nil
}

func (t *authTokens) setHeader(req *request.Request, token *oauth2.Token) error {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if token == nil || token.AccessToken == "" {
		if !t.config.AllowEmptyToken {
			return fmt.Errorf(`cannot authorize the operation "%s": %w`, req.OperationName(), ErrEmptyToken)
		}
		req.Header.Del(t.config.Header)
		return nil
	}
	req.Header.Set(t.config.Header, token.Type()+" "+token.AccessToken)
	return nil
}

// isExpiredJWT returns true if the token is a JWT token with the "exp" claim in the past.
// The signature is not verified, it is the job of the server.
func isExpiredJWT(value string, leeway time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().Add(leeway).After(exp.Time)
}
