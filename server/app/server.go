package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"semchat/server/api"
	"semchat/server/common/infra/cache"
	"semchat/server/common/infra/db"
	"semchat/server/common/infra/mq"
	"semchat/server/common/infra/object"
	commonlog "semchat/server/common/log"
	"semchat/server/embedding"
	"semchat/server/repository"
	"semchat/server/service"
	"semchat/server/vector"
)

type Server struct {
	HTTPServer *http.Server
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection

	hub       *service.Hub
	outbox    *service.IndexOutbox
	publisher *service.AMQPPublisher
	subCancel context.CancelFunc
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var redisClient *redis.Client
	if cfg.UseRedis {
		redisClient = cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, redisClient); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var (
		mqConn    *amqp.Connection
		publisher *service.AMQPPublisher
	)
	if cfg.UseMQ {
		mqConn, err = mq.NewConnection(cfg.AMQPURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		publisher, err = service.NewAMQPPublisher(mqConn)
		if err != nil {
			pool.Close()
			_ = mqConn.Close()
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
	}

	embedder := embedding.NewClient(cfg.EmbeddingEndpoint, cfg.EmbeddingToken, cfg.EmbeddingDim,
		embedding.WithRetry(cfg.EmbeddingAttempts, cfg.EmbeddingRetryDelay))

	var index vector.Index
	switch cfg.VectorBackend {
	case VectorBackendMemory:
		index = vector.NewMemoryIndex()
	default:
		index = vector.NewQdrantIndex(cfg.QdrantEndpoint, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingDim)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure vector collection: %w", err)
	}

	userRepo := repository.NewUserRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	hub := service.NewHub()
	var subCancel context.CancelFunc
	if redisClient != nil {
		hub.UseRedis(redisClient)
		subCtx, stopSub := context.WithCancel(context.Background())
		subCancel = stopSub
		if err := hub.StartRedisSubscriber(subCtx); err != nil {
			commonlog.Warnf("event=hub action=subscribe status=degraded err=%v", err)
		}
	}

	outbox := service.NewIndexOutbox(embedder, index).WithInterval(cfg.OutboxInterval)
	outbox.Start()

	chatSvc := service.NewChatService(messageRepo, embedder, index, hub).WithOutbox(outbox)
	if redisClient != nil {
		chatSvc = chatSvc.WithRedis(redisClient)
	}
	if publisher != nil {
		chatSvc = chatSvc.WithEvents(publisher)
	}

	userSvc := service.NewUserService(userRepo)
	searchSvc := service.NewSearchService(embedder, index)
	wsSvc := service.NewRealtimeService(hub, chatSvc)

	var fileSvc *service.FileService
	if cfg.UseFiles {
		minioClient, err := object.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize minio: %w", err)
		}
		if err := object.EnsureBucket(ctx, minioClient, cfg.MinIOBucket); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		fileRepo := repository.NewFileRepository(pool)
		fileSvc = service.NewFileService(fileRepo, minioClient, cfg.MinIOBucket)
	}

	h := api.NewHandler(userSvc, chatSvc, searchSvc, fileSvc, wsSvc)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		Pool:       pool,
		Redis:      redisClient,
		MQConn:     mqConn,
		hub:        hub,
		outbox:     outbox,
		publisher:  publisher,
		subCancel:  subCancel,
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.outbox != nil {
		s.outbox.Stop()
	}
	if s.subCancel != nil {
		s.subCancel()
	}
	if s.hub != nil {
		s.hub.StopRedisSubscriber()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	err := s.HTTPServer.Shutdown(ctx)
	if s.Pool != nil {
		s.Pool.Close()
	}
	return err
}
