// Command server wires chatcore's collaborators, the query-orchestration
// core, and the HTTP adapter into one runnable process, following the
// stack's load-config/dial-everything/mount-router/graceful-shutdown shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chatcore/chatcore/internal/archivestore"
	"github.com/chatcore/chatcore/internal/chatdriver"
	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/config"
	"github.com/chatcore/chatcore/internal/generation"
	"github.com/chatcore/chatcore/internal/graph"
	"github.com/chatcore/chatcore/internal/groundedness"
	"github.com/chatcore/chatcore/internal/httpapi"
	"github.com/chatcore/chatcore/internal/metrics"
	"github.com/chatcore/chatcore/internal/migrate"
	"github.com/chatcore/chatcore/internal/notify"
	"github.com/chatcore/chatcore/internal/retrieval"
	"github.com/chatcore/chatcore/internal/router"
	"github.com/chatcore/chatcore/internal/semanticcache"
	"github.com/chatcore/chatcore/internal/sessionstore"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.WithError(err).Fatal("failed to connect to mongo")
	}
	mongoDB := mongoClient.Database(cfg.MongoDB)

	var gormDB *gorm.DB
	var relationalEngine collaborators.RelationalEngine
	if cfg.PostgresDSN != "" {
		if err := migrate.Apply(cfg.PostgresDSN); err != nil {
			log.WithError(err).Fatal("failed to apply relational schema migrations")
		}
		gormDB, err = gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to postgres")
		}
		relationalEngine = collaborators.NewGormRelationalEngine(gormDB)
	} else {
		log.Warn("no postgres dsn configured, order lookups will be disabled")
	}

	milvusIndex, err := collaborators.NewMilvusIndex(ctx, cfg.MilvusAddr, 1536)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to milvus")
	}

	var llm collaborators.LLMChat
	var embedder collaborators.Embedder
	if cfg.OpenAIAPIKey != "" {
		llm = collaborators.NewOpenAIChat(cfg.OpenAIAPIKey)
		embedder = collaborators.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel)
	} else {
		log.Warn("no openai api key configured, generation and embeddings will be disabled")
	}

	kafkaNotifier := collaborators.NewKafkaNotifier(cfg.KafkaBrokers, cfg.NotificationTopic)
	defer kafkaNotifier.Close()

	notifyHandler := notify.NewHandler(notify.Config{MaxConnections: 500}, log)

	fanout := fanoutNotifier{sinks: []collaborators.NotificationSink{kafkaNotifier, notifyHandler}}

	store := sessionstore.New(redisClient, cfg.SessionTTLDays, cfg.SessionStoreTimeout)
	archive := archivestore.New(mongoDB)
	if err := archive.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("failed to ensure archival indexes")
	}

	cache := semanticcache.New(milvusIndex, embedder, cfg.SemanticCacheNamespace, cfg.SemanticCacheSimThreshold, cfg.EmbedTimeout, cfg.VectorQueryTimeout, log)
	reranker := collaborators.NewHeuristicCrossEncoder()

	sqlRetriever := retrieval.NewSQLRetriever(relationalEngine, cfg.DBTimeout, log)
	docRetriever := retrieval.NewDocRetriever(embedder, milvusIndex, reranker, cfg.PolicyDocsNamespace, cfg.EmbedTimeout, cfg.VectorQueryTimeout, log)
	merger := retrieval.NewMerger(sqlRetriever, docRetriever)

	rtr := router.New(llm, relationalEngine != nil, cfg.OpenAIChatModel, cfg.LLMTimeout, log)
	gen := generation.New(llm, cfg.OpenAIChatModel, cfg.LLMTimeout, log)
	judge := groundedness.New(llm, cfg.OpenAIChatModel, cfg.LLMTimeout, log)
	coordinator := graph.New(rtr, cache, merger, gen, judge, log)

	driverCfg := chatdriver.Config{
		RecentWindow:        cfg.RecentMessagesWindow,
		SummaryMinMessages:  cfg.SummaryMinMessages,
		SummaryHistoryLimit: cfg.SummaryHistoryLimit,
		SummaryMaxChars:     cfg.SummaryMaxChars,
		AdminBypassEmail:    cfg.AdminBypassEmail,
		AdminBypassPasscode: cfg.AdminBypassPasscode,
		NotificationTimeout: cfg.NotificationTimeout,
	}
	driver := chatdriver.New(store, archive, coordinator, fanout, llm, driverCfg, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ready", func(c *gin.Context) {
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := httpapi.New(driver, notifyHandler, log)
	api.Register(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("starting chatcore server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.WithError(err).Warn("mongo disconnect failed")
	}
	if err := redisClient.Close(); err != nil {
		log.WithError(err).Warn("redis close failed")
	}
	if gormDB != nil {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	fmt.Println("shutdown complete")
}

// fanoutNotifier delivers an escalation alert to every configured sink
// (Kafka for downstream consumers, the websocket hub for live dashboards).
// A failing sink does not stop delivery to the others; the first error seen
// is returned once every sink has been tried.
type fanoutNotifier struct {
	sinks []collaborators.NotificationSink
}

func (f fanoutNotifier) Notify(ctx context.Context, alert collaborators.EscalationAlert) error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Notify(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
