// Package middleware contains pluggable middlewares of the network.Network.
//
// Middlewares are registered in the order of execution, the first one is the outermost:
//
//	n := network.New().
//		WithBaseURL("https://example.com").
//		WithMiddlewares(
//			middleware.URL(middleware.URLConfig{URL: "/graphql"}),
//			middleware.RequestID(),
//			middleware.Logger(logger),
//			middleware.Cache(middleware.CacheConfig{Store: middleware.NewMemoryStore(0)}),
//			middleware.Retry(middleware.DefaultRetry()),
//			middleware.Auth(middleware.AuthConfig{TokenSource: tokens}),
//		)
//
// Cache is placed before Retry, so a cached response skips the retries too.
// Auth is placed after Retry, so each attempt reads the current token.
package middleware
