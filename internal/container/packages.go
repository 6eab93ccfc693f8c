package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/ratelimiter/internal/analytics"
	analyticsstore "github.com/serroba/ratelimiter/internal/analytics/store"
	"github.com/serroba/ratelimiter/internal/handlers"
	"github.com/serroba/ratelimiter/internal/health"
	"github.com/serroba/ratelimiter/internal/messaging"
	"github.com/serroba/ratelimiter/internal/middleware"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/serroba/ratelimiter/internal/store"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// LoggerPackage provides *zap.Logger, JSON in production and console otherwise.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides *redis.Client.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*redis.Client, error) {
		opts := do.MustInvoke[*Options](i)

		return redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		}), nil
	})
}

// PostgresPackage provides *pgxpool.Pool.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*pgxpool.Pool, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return pool, nil
	})
}

// CounterStorePackage provides the ratelimit.Store selected by Options.Store
// and the *store.SweepLoop reclaiming its expired records.
func CounterStorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.Store {
		case StoreMemory:
			return store.NewRateLimitMemoryStore(), nil
		case StoreRedis:
			return newRedisCounterStore(i, opts, logger)
		case StorePostgres:
			return newPostgresCounterStore(i, opts)
		default:
			return nil, fmt.Errorf("%w: store %q", errInvalidOption, opts.Store)
		}
	})

	do.Provide(i, func(i *do.Injector) (*store.SweepLoop, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		counters := do.MustInvoke[ratelimit.Store](i)

		interval, err := parseDuration(opts.SweepInterval)
		if err != nil {
			return nil, fmt.Errorf("%w: sweep interval: %w", errInvalidOption, err)
		}

		// Redis expires records by TTL and leaves sweeper nil.
		sweeper, _ := counters.(store.Sweeper)

		return store.NewSweepLoop(sweeper, interval, logger), nil
	})
}

func newRedisCounterStore(i *do.Injector, opts *Options, logger *zap.Logger) (*store.RateLimitRedisStore, error) {
	var lock store.RedisLockConfig

	for _, d := range []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"lock expiry", opts.LockExpiry, &lock.Expiry},
		{"lock timeout", opts.LockTimeout, &lock.Timeout},
		{"lock retry interval", opts.LockRetryInterval, &lock.RetryInterval},
	} {
		parsed, err := parseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", errInvalidOption, d.name, err)
		}

		*d.target = parsed
	}

	if lock.Timeout > lock.Expiry {
		logger.Warn("lock timeout exceeds lock expiry; a stalled holder can outlive waiters",
			zap.Duration("timeout", lock.Timeout), zap.Duration("expiry", lock.Expiry))
	}

	return store.NewRateLimitRedisStore(do.MustInvoke[*redis.Client](i), lock, logger)
}

func newPostgresCounterStore(i *do.Injector, opts *Options) (*store.RateLimitPostgresStore, error) {
	timeout, err := parseDuration(opts.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: lock timeout: %w", errInvalidOption, err)
	}

	s := store.NewRateLimitPostgresStore(do.MustInvoke[*pgxpool.Pool](i), timeout)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// RegistryPackage provides the *ratelimit.Registry and the handlers.RoutePolicies
// binding the sample endpoints to its policies.
func RegistryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.Registry, error) {
		opts := do.MustInvoke[*Options](i)
		counters := do.MustInvoke[ratelimit.Store](i)

		window, err := parseDuration(opts.DefaultWindow)
		if err != nil {
			return nil, fmt.Errorf("%w: default window: %w", errInvalidOption, err)
		}

		b := ratelimit.NewRegistryBuilder(counters).
			AddFixedWindowPolicy(PolicyDefault, ratelimit.FixedWindowOptions{
				Options:     ratelimit.Options{KeyGenerator: ratelimit.UserKey},
				PermitLimit: int64(opts.DefaultLimit),
				Window:      window,
			}, ratelimit.AsDefault()).
			AddFixedWindowPolicy(PolicyStrict, ratelimit.FixedWindowOptions{
				PermitLimit: int64(opts.StrictLimit),
				Window:      window,
			}).
			AddTokenBucketPolicy(PolicyBucket, ratelimit.TokenBucketOptions{
				Options:              ratelimit.Options{KeyGenerator: ratelimit.ServiceKey},
				MaxRequestsPerSecond: int64(opts.BucketRate),
				BurstCapacity:        int64(opts.BucketBurst),
			})

		if opts.GlobalRate > 0 {
			b.AddTokenBucketPolicy(PolicyGlobal, ratelimit.TokenBucketOptions{
				MaxRequestsPerSecond: int64(opts.GlobalRate),
				BurstCapacity:        2 * int64(opts.GlobalRate),
			}, ratelimit.Global())
		}

		return b.Build()
	})

	do.ProvideValue(i, handlers.RoutePolicies{
		Ping:  PolicyStrict,
		Stats: PolicyBucket,
	})
}

// EventsPackage provides the lease event pipeline: the analytics.Recorder the
// middleware reports to, the analytics.StatsReader behind /stats, and the
// watermill publisher and subscriber for the configured transport.
func EventsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*analytics.Stats, error) {
		return analytics.NewStats(), nil
	})

	do.Provide(i, func(i *do.Injector) (*gochannel.GoChannel, error) {
		logger := do.MustInvoke[*zap.Logger](i)

		return gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, messaging.NewZapLogger(logger)), nil
	})

	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.Events {
		case EventsInProc:
			return messaging.NewPublisherGroup(do.MustInvoke[*gochannel.GoChannel](i)), nil
		case EventsRedis:
			publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
				Client:     do.MustInvoke[*redis.Client](i),
				Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
			}, messaging.NewZapLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("redis stream publisher: %w", err)
			}

			return messaging.NewPublisherGroup(publisher), nil
		default:
			return nil, fmt.Errorf("%w: events %q have no publisher", errInvalidOption, opts.Events)
		}
	})

	do.Provide(i, func(i *do.Injector) (message.Subscriber, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.Events {
		case EventsInProc:
			return do.MustInvoke[*gochannel.GoChannel](i), nil
		case EventsRedis:
			subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        do.MustInvoke[*redis.Client](i),
				Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
				ConsumerGroup: opts.ConsumerGroup,
			}, messaging.NewZapLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("redis stream subscriber: %w", err)
			}

			return subscriber, nil
		default:
			return nil, fmt.Errorf("%w: events %q have no subscriber", errInvalidOption, opts.Events)
		}
	})

	do.Provide(i, func(i *do.Injector) (analytics.Recorder, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		stats := do.MustInvoke[*analytics.Stats](i)

		if opts.Events == EventsOff {
			return analytics.NewLeaseRecorder(stats, nil, logger), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)
		publish := messaging.NewPublishFunc[analytics.LeaseEvent](group.Publisher(), analytics.TopicLeaseRecorded)

		return analytics.NewLeaseRecorder(stats, publish, logger), nil
	})

	// With Redis streams every instance's leases land in one shared aggregate.
	do.Provide(i, func(i *do.Injector) (analytics.StatsReader, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.Events == EventsRedis {
			return analyticsstore.NewRedis(do.MustInvoke[*redis.Client](i)), nil
		}

		return do.MustInvoke[*analytics.Stats](i), nil
	})

	do.Provide(i, func(i *do.Injector) (analytics.Store, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.AnalyticsSink {
		case SinkLog:
			return analyticsstore.NewNoop(do.MustInvoke[*zap.Logger](i)), nil
		case SinkRedis:
			return analyticsstore.NewRedis(do.MustInvoke[*redis.Client](i)), nil
		default:
			return nil, fmt.Errorf("%w: analytics sink %q", errInvalidOption, opts.AnalyticsSink)
		}
	})
}

// ConsumerGroupPackage provides the *messaging.ConsumerGroup that persists
// lease events to the configured analytics.Store.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		subscriber := do.MustInvoke[message.Subscriber](i)
		sink := do.MustInvoke[analytics.Store](i)

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			analytics.TopicLeaseRecorded,
			analytics.NewLeaseHandler(sink),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the huma.API with middleware and routes registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)
		registry := do.MustInvoke[*ratelimit.Registry](i)
		recorder := do.MustInvoke[analytics.Recorder](i)

		api := humachi.New(router, huma.DefaultConfig("Rate Limiter", "1.0.0"))
		api.UseMiddleware(middleware.RequestMeta(api))
		api.UseMiddleware(middleware.PolicyRateLimiter(api, registry, recorder, logger))

		health.RegisterRoutes(api, health.NewHandler(healthDependencies(i)...))

		err := handlers.RegisterRoutes(
			api,
			registry,
			do.MustInvoke[handlers.RoutePolicies](i),
			handlers.NewSampleHandler(do.MustInvoke[analytics.StatsReader](i), logger),
		)
		if err != nil {
			return nil, err
		}

		return api, nil
	})
}

func healthDependencies(i *do.Injector) []health.Dependency {
	opts := do.MustInvoke[*Options](i)

	var deps []health.Dependency

	if opts.Store == StoreRedis || opts.Events == EventsRedis {
		deps = append(deps, health.Dependency{
			Name:    "redis",
			Checker: health.NewRedisChecker(do.MustInvoke[*redis.Client](i)),
		})
	}

	if opts.Store == StorePostgres {
		deps = append(deps, health.Dependency{
			Name:    "postgres",
			Checker: do.MustInvoke[*pgxpool.Pool](i),
		})
	}

	return deps
}

// StartBackground starts the workers the server runs next to its HTTP
// listener: the counter sweep and, with in-process events, the lease consumer.
func StartBackground(ctx context.Context, i *do.Injector) error {
	loop := do.MustInvoke[*store.SweepLoop](i)
	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	if do.MustInvoke[*Options](i).Events != EventsInProc {
		return nil
	}

	if err := do.MustInvoke[*messaging.ConsumerGroup](i).Start(ctx); err != nil {
		return fmt.Errorf("start lease consumer: %w", err)
	}

	return nil
}
