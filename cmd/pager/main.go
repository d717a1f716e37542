package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/map-search-pager/internal/bus"
	"github.com/mohammed-shakir/map-search-pager/internal/bus/kafkabridge"
	"github.com/mohammed-shakir/map-search-pager/internal/cache/redisstore"
	"github.com/mohammed-shakir/map-search-pager/internal/core/config"
	"github.com/mohammed-shakir/map-search-pager/internal/core/health"
	"github.com/mohammed-shakir/map-search-pager/internal/core/httpclient"
	"github.com/mohammed-shakir/map-search-pager/internal/core/observability"
	"github.com/mohammed-shakir/map-search-pager/internal/core/router"
	"github.com/mohammed-shakir/map-search-pager/internal/core/server"
	"github.com/mohammed-shakir/map-search-pager/internal/logger"
	"github.com/mohammed-shakir/map-search-pager/internal/pager"
	"github.com/mohammed-shakir/map-search-pager/internal/search/ckan"
	"github.com/mohammed-shakir/map-search-pager/internal/search/resultcache"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding CKAN base via flag
	ckanFlag := flag.String("ckan", "", "CKAN base url")
	flag.Parse()

	cfg := config.FromEnv()
	if *ckanFlag != "" {
		cfg.CKANURL = strings.TrimSpace(*ckanFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "map-search-pager",
		Component: "pager",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting pager",
		"addr", cfg.Addr,
		"version", Version,
		"ckan", cfg.CKANURL,
		"cache", cfg.Cache.Enabled,
		"kafka", cfg.Kafka.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ckanClient, err := ckan.New(appLog, httpclient.NewOutbound(cfg.SearchTimeout), cfg.CKANURL, ckan.WithAPIKey(cfg.CKANAPIKey))
	if err != nil {
		appLog.Error("failed to initialize ckan client", "err", err)
		return 1
	}
	action := pager.Action(ckanClient.Search)
	ready := map[string]health.Check{}

	if cfg.Cache.Enabled {
		rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			appLog.Error("redis unavailable", "addr", cfg.Cache.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		ready["redis"] = health.FromPinger(rc)

		rcache := resultcache.New(resultcache.Config{
			TTL:       cfg.Cache.TTL,
			LRUSize:   cfg.Cache.LRUSize,
			OpTimeout: cfg.Cache.OpTimeout,
		}, rc, appLog)
		action = rcache.Wrap(action)
	}

	b := bus.NewLocal(appLog)
	pages := pager.NewAnchorList()
	p := pager.New(b,
		pager.WithLogger(appLog),
		pager.WithContainer(pages),
		pager.WithDefaultAction(action),
		pager.WithSearchTimeout(cfg.SearchTimeout),
	)
	defer p.Close()

	if cfg.Kafka.Enabled {
		cons := kafkabridge.NewConsumer(kafkabridge.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.SelectionTopic,
			GroupID: cfg.Kafka.GroupID,
		}, b, appLog)
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("kafka consumer stopped", "err", err)
			}
		}()
		ready["kafka"] = health.FromReporter(cons)

		pub, err := kafkabridge.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.ResultsTopic, cfg.Kafka.QueueSize, appLog)
		if err != nil {
			appLog.Error("kafka producer setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		pub.Attach(b, bus.TopicResultsReceived, bus.TopicSearchFailed)
	}

	h := router.New(appLog, cfg, b, p, pages)
	if err := server.Run(ctx, cfg, appLog, server.NewRouter(cfg, appLog, h, ready)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
