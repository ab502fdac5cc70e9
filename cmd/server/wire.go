package main

import (
	"context"
	"fmt"

	aicontroller "codearena/internal/ai/controller"
	aiservice "codearena/internal/ai/service"
	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/docstore"
	"codearena/internal/common/mq"
	"codearena/internal/common/ratelimit"
	"codearena/internal/common/storage"
	discusscontroller "codearena/internal/discuss/controller"
	discussrepo "codearena/internal/discuss/repository"
	discussservice "codearena/internal/discuss/service"
	"codearena/internal/judge/judge0client"
	judgeservice "codearena/internal/judge/service"
	problemcontroller "codearena/internal/problem/controller"
	problemrepo "codearena/internal/problem/repository"
	problemservice "codearena/internal/problem/service"
	sheetcontroller "codearena/internal/sheet/controller"
	sheetrepo "codearena/internal/sheet/repository"
	sheetservice "codearena/internal/sheet/service"
	submitcontroller "codearena/internal/submit/controller"
	submitrepo "codearena/internal/submit/repository"
	submitservice "codearena/internal/submit/service"
	usercontroller "codearena/internal/user/controller"
	userrepo "codearena/internal/user/repository"
	userservice "codearena/internal/user/service"
	videocontroller "codearena/internal/video/controller"
	videorepo "codearena/internal/video/repository"
	videoservice "codearena/internal/video/service"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// app owns every long-lived resource of the server.
type app struct {
	mysql   *db.MySQL
	redis   *cache.RedisCache
	mongo   *docstore.Mongo
	queue   mq.MessageQueue
	routes  routeSet
	readies []readinessCheck
}

// problemLookup adapts the problem repository to the existence checks of
// the video and cleanup components.
type problemLookup struct {
	problems problemrepo.ProblemRepository
}

func (l problemLookup) Exists(ctx context.Context, problemID int64) (bool, error) {
	return l.problems.Exists(ctx, nil, problemID)
}

func buildApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	mysql, err := db.NewMySQLWithConfig(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init mysql failed: %w", err)
	}
	a.mysql = mysql
	if err := db.Migrate(ctx, mysql, schemas()...); err != nil {
		return nil, fmt.Errorf("migrate mysql failed: %w", err)
	}
	provider := db.NewStaticProvider(mysql)

	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis failed: %w", err)
	}
	a.redis = redisCache

	mongoCfg := docstore.DefaultMongoConfig()
	mongoCfg.URI = cfg.Mongo.URI
	mongoCfg.Database = cfg.Mongo.Database
	mongoCfg.ConnectTimeout = cfg.Mongo.ConnectTimeout
	mongoCfg.MaxPoolSize = cfg.Mongo.MaxPoolSize
	mongoStore, err := docstore.NewMongoWithConfig(ctx, mongoCfg)
	if err != nil {
		return nil, fmt.Errorf("init mongo failed: %w", err)
	}
	a.mongo = mongoStore

	var objectStorage storage.ObjectStorage
	if cfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		if err := minioStorage.EnsureBucket(ctx, cfg.MinIO.Bucket); err != nil {
			return nil, fmt.Errorf("ensure minio bucket failed: %w", err)
		}
		objectStorage = minioStorage
	} else {
		logger.Warn(ctx, "minio is not configured, video and avatar uploads are disabled")
	}

	if cfg.Events.Enabled {
		queue, err := mq.NewKafkaQueue(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init kafka failed: %w", err)
		}
		a.queue = queue
	}

	// Repositories.
	users := userrepo.NewUserRepository(provider, redisCache)
	solved := userrepo.NewSolvedRepository(provider)
	denylist := userrepo.NewTokenDenylistRepository(
		cache.NewLRUCache[bool](cfg.Auth.DenylistLocalSize, cfg.Auth.DenylistLocalTTL),
		redisCache,
		cfg.Redis.ReadTimeout,
		cfg.Auth.DenylistLocalTTL,
	)
	problems := problemrepo.NewProblemRepository(provider, redisCache)
	submissions := submitrepo.NewSubmissionRepository(provider, redisCache)
	videos := videorepo.NewVideoRepository(provider)
	sheets := sheetrepo.NewSheetRepository(provider)
	posts := discussrepo.NewPostRepository(mongoStore.Collection(cfg.Mongo.PostCollection))
	if err := posts.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure post indexes failed: %w", err)
	}

	// Judge.
	judgeClient, err := judge0client.NewClient(cfg.Judge.Client, nil)
	if err != nil {
		return nil, fmt.Errorf("init judge client failed: %w", err)
	}
	judge, err := judgeservice.NewService(judgeClient, cfg.Judge.Polling)
	if err != nil {
		return nil, fmt.Errorf("init judge service failed: %w", err)
	}

	// Users and profiles.
	tokens := userservice.NewTokenService(userservice.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
		TTL:    cfg.Auth.TokenTTL,
	}, denylist)
	profiles := userservice.NewProfileService(users, solved, posts, redisCache, objectStorage, userservice.ProfileConfig{
		CacheTTL:            cfg.Profile.CacheTTL,
		EmptyCacheTTL:       cfg.Profile.EmptyCacheTTL,
		PostLimit:           cfg.Profile.PostLimit,
		AvatarBucket:        cfg.MinIO.Bucket,
		AvatarUploadTTL:     cfg.Profile.AvatarUploadTTL,
		AvatarPublicBaseURL: cfg.Profile.AvatarPublicBaseURL,
	})
	authService := userservice.NewAuthService(userservice.AuthServiceDeps{
		DBProvider:   provider,
		Users:        users,
		Solved:       solved,
		Submissions:  submissions,
		Tokens:       tokens,
		LoginLimiter: ratelimit.NewSlidingWindowLimiter(redisCache, cfg.RateLimit.LoginMax, cfg.RateLimit.LoginWindow),
		ProfileCache: redisCache,
		BcryptCost:   cfg.Auth.BcryptCost,
	})

	// Videos and problem cleanup.
	lookup := problemLookup{problems: problems}
	videoService := videoservice.NewVideoService(videos, lookup, objectStorage, videoservice.Config{
		DBProvider:  provider,
		Bucket:      cfg.MinIO.Bucket,
		KeyPrefix:   cfg.Video.KeyPrefix,
		UploadTTL:   cfg.Video.UploadTTL,
		PlaybackTTL: cfg.Video.PlaybackTTL,
	})
	cleanupConsumer := problemservice.NewProblemCleanupConsumer(a.queue, lookup, objectStorage, problemservice.CleanupOptions{
		Bucket:    cfg.MinIO.Bucket,
		KeyPrefix: cfg.Video.KeyPrefix,
		BatchSize: cfg.Video.CleanupBatchSize,
		Timeout:   cfg.Video.CleanupTimeout,
	})
	var cleanup problemservice.CleanupScheduler
	switch {
	case a.queue != nil:
		cleanup = problemservice.NewProblemCleanupPublisher(a.queue, cfg.Events.CleanupTopic, cfg.MinIO.Bucket, cfg.Video.KeyPrefix)
	case objectStorage != nil:
		cleanup = problemservice.NewInlineCleanup(cleanupConsumer, cfg.MinIO.Bucket, cfg.Video.KeyPrefix)
	}
	problemService := problemservice.NewProblemService(problemservice.ProblemServiceDeps{
		DBProvider: provider,
		Problems:   problems,
		Solved:     solved,
		Videos:     videoService,
		Judge:      judge,
		Cleanup:    cleanup,
	})

	// Submissions and judged events.
	dispatcher := submitservice.NewJudgedDispatcher(a.queue, submitservice.InvalidateProfileOnJudged(profiles))
	var events submitservice.JudgedPublisher = dispatcher
	if a.queue != nil {
		events = submitservice.NewJudgedEventPublisher(a.queue, cfg.Events.JudgedTopic)
	}
	submitService, err := submitservice.NewSubmitService(submitservice.Config{
		DBProvider:     provider,
		Submissions:    submissions,
		Problems:       problems,
		Judge:          judge,
		Solved:         solved,
		Cache:          redisCache,
		Limiter:        ratelimit.NewFixedWindowLimiter(redisCache, cfg.RateLimit.SubmitMax, cfg.RateLimit.SubmitWindow),
		Events:         events,
		MaxCodeBytes:   cfg.Judge.MaxCodeBytes,
		IdempotencyTTL: cfg.Judge.IdempotencyTTL,
		Timeouts: submitservice.TimeoutConfig{
			Cache: cfg.Redis.ReadTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init submit service failed: %w", err)
	}

	// Assistant.
	var generator aiservice.Generator
	if cfg.Gemini.APIKey != "" {
		gemini, err := aiservice.NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("init gemini failed: %w", err)
		}
		generator = gemini
	} else {
		logger.Warn(ctx, "gemini api key is not configured, the assistant is disabled")
	}
	chatService := aiservice.NewChatService(generator, aiservice.Config{
		Timeout:    cfg.Gemini.Timeout,
		MaxHistory: cfg.Gemini.MaxHistory,
	})

	if a.queue != nil {
		if err := cleanupConsumer.Subscribe(ctx, cfg.Events.CleanupTopic, cfg.Events.CleanupGroup, subscribeOptions(cfg.Events, cfg.Events.CleanupTopic)); err != nil {
			return nil, fmt.Errorf("subscribe cleanup events failed: %w", err)
		}
		if err := dispatcher.Subscribe(ctx, cfg.Events.JudgedTopic, cfg.Events.JudgedGroup, subscribeOptions(cfg.Events, cfg.Events.JudgedTopic)); err != nil {
			return nil, fmt.Errorf("subscribe judged events failed: %w", err)
		}
		if err := a.queue.Start(); err != nil {
			return nil, fmt.Errorf("start kafka consumers failed: %w", err)
		}
		logger.Info(ctx, "event consumers started",
			zap.String("cleanup_topic", cfg.Events.CleanupTopic),
			zap.String("judged_topic", cfg.Events.JudgedTopic),
		)
	}

	a.routes = routeSet{
		auth:        tokens,
		chatLimiter: ratelimit.NewFixedWindowLimiter(redisCache, cfg.RateLimit.ChatMax, cfg.RateLimit.ChatWindow),
		user:        usercontroller.NewUserController(authService, profiles, cfg.Auth.CookieSecure),
		problem:     problemcontroller.NewProblemController(problemService),
		submit:      submitcontroller.NewSubmitController(submitService),
		video:       videocontroller.NewVideoController(videoService),
		discuss:     discusscontroller.NewPostController(discussservice.NewPostService(posts, profiles, profiles)),
		sheet:       sheetcontroller.NewSheetController(sheetservice.NewSheetService(provider, sheets, problems)),
		chat:        aicontroller.NewChatController(chatService),
	}
	a.readies = []readinessCheck{
		{name: "mysql", ping: mysql.Ping},
		{name: "redis", ping: redisCache.Ping},
		{name: "mongo", ping: mongoStore.Ping},
	}
	if a.queue != nil {
		a.readies = append(a.readies, readinessCheck{name: "kafka", ping: a.queue.Ping})
	}
	ok = true
	return a, nil
}

func schemas() []string {
	var out []string
	out = append(out, userrepo.Schema...)
	out = append(out, problemrepo.Schema...)
	out = append(out, submitrepo.Schema...)
	out = append(out, videorepo.Schema...)
	out = append(out, sheetrepo.Schema...)
	return out
}

func subscribeOptions(cfg EventsConfig, topic string) *mq.SubscribeOptions {
	opts := &mq.SubscribeOptions{
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
	}
	if cfg.DeadLetterSuffix != "" {
		opts.DeadLetterTopic = topic + cfg.DeadLetterSuffix
	}
	return opts
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	if a.queue != nil {
		if err := a.queue.Stop(); err != nil {
			logger.Warn(ctx, "stop kafka consumers failed", zap.Error(err))
		}
		if err := a.queue.Close(); err != nil {
			logger.Warn(ctx, "close kafka failed", zap.Error(err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			logger.Warn(ctx, "close mongo failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn(ctx, "close redis failed", zap.Error(err))
		}
	}
	if a.mysql != nil {
		if err := a.mysql.Close(); err != nil {
			logger.Warn(ctx, "close mysql failed", zap.Error(err))
		}
	}
}
