// Command relay-fetch sends one GraphQL operation through the network layer and prints the data.
//
//	relay-fetch --endpoint https://example.com/graphql --query 'query Viewer { viewer { id } }'
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/oauth2"

	"github.com/relaynet/go-relay-network/internal/config"
	"github.com/relaynet/go-relay-network/pkg/middleware"
	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/network/trace"
	"github.com/relaynet/go-relay-network/pkg/request"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := config.Flags()
	flags.SetOutput(stderr)
	flags.String("query", "", "GraphQL query text")
	flags.String("variables", "", "variables of the query, a JSON object")
	flags.String("operation", "", "name of the operation")
	if err := flags.Parse(args); errors.Is(err, pflag.ErrHelp) {
		return 0
	} else if err != nil {
		return 2
	}

	cfg, err := config.Load(flags)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	logger := newLogger(cfg, stderr)

	op, err := operationFromFlags(flags)
	if err != nil {
		logger.Error().Err(err).Msg("invalid operation")
		return 2
	}

	n, closeFn := newNetwork(cfg, logger, stderr)
	defer closeFn()

	res, err := n.Query(ctx, op)
	if err != nil {
		var reqErr *network.RequestError
		if errors.As(err, &reqErr) {
			logger.Error().Int("status", reqErr.StatusCode()).Msg(err.Error())
		} else {
			logger.Error().Err(err).Msg("request failed")
		}
		return 1
	}

	out, err := json.MarshalIndent(res.Data, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("cannot encode data")
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func operationFromFlags(flags *pflag.FlagSet) (request.Operation, error) {
	query, _ := flags.GetString("query")
	name, _ := flags.GetString("operation")
	variablesJSON, _ := flags.GetString("variables")
	if query == "" {
		return request.Operation{}, errors.New(`flag "--query" is required`)
	}

	op := request.Operation{Name: name, Query: query}
	if variablesJSON != "" {
		if err := json.Unmarshal([]byte(variablesJSON), &op.Variables); err != nil {
			return request.Operation{}, fmt.Errorf(`flag "--variables" is not a valid JSON object: %w`, err)
		}
	}
	return op, nil
}

func newNetwork(cfg *config.Config, logger zerolog.Logger, stderr io.Writer) (network.Network, func()) {
	closeFn := func() {}

	fetcher := network.NewFetcher().WithTimeout(cfg.Timeout)
	if cfg.HTTP2 {
		fetcher = fetcher.WithTransport(network.HTTP2Transport())
	}
	if cfg.Verbose {
		fetcher = fetcher.AndTrace(trace.LogTracer(stderr))
	}

	middlewares := []network.Middleware{
		middleware.URL(middleware.URLConfig{URL: cfg.Endpoint}),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Error(logger),
	}

	if cfg.Cache {
		var store middleware.Store = middleware.NewMemoryStore(0)
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			closeFn = func() {
				if err := client.Close(); err != nil {
					logger.Warn().Err(err).Msg("cannot close redis client")
				}
			}
			store = middleware.NewRedisStore(client, cfg.RedisPrefix)
		}
		middlewares = append(middlewares, middleware.Cache(middleware.CacheConfig{
			Store: store,
			TTL:   cfg.CacheTTL,
			OnStoreError: func(_ context.Context, req *request.Request, err error) {
				logger.Warn().Err(err).Str(middleware.FieldOperation, req.OperationName()).Msg("cache store failed")
			},
		}))
	}

	retry := middleware.DefaultRetry()
	retry.Count = cfg.RetryCount
	retry.OnRetry = func(_ context.Context, req *request.Request, attempt int, delay time.Duration, err error) {
		logger.Info().Err(err).Int("attempt", attempt).Dur("delay", delay).Str(middleware.FieldOperation, req.OperationName()).Msg("retrying request")
	}
	middlewares = append(middlewares, middleware.Retry(retry))

	if cfg.Token != "" {
		middlewares = append(middlewares, middleware.Auth(middleware.AuthConfig{
			TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		}))
	}

	return network.New().WithFetcher(fetcher).WithMiddlewares(middlewares...), closeFn
}
