package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"PPulse/data/database/mgo/mongoutil"
	"PPulse/global"
	"PPulse/logger"
	"PPulse/module/admin"
	"PPulse/module/event"
	"PPulse/module/fanout"
	"PPulse/module/gate"
	"PPulse/module/presence"
	presencemodel "PPulse/module/presence/model"
	"PPulse/module/purge"
	"PPulse/service/dispatch"
	servicemgo "PPulse/service/mgo"
	"PPulse/service/natsx"
	"PPulse/service/oss"
	"PPulse/service/push"
	"PPulse/service/storage"
	storageredis "PPulse/service/storage/redis"
	"PPulse/tools/ids"
	"PPulse/tools/safe"
)

func main() {
	if err := global.Init(); err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	cfg := global.Config
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stores
	servicemgo.StartAsync(ctx, &mongoutil.Config{
		Uri:         cfg.Mongo.Uri,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		MaxRetry:    cfg.Mongo.MaxRetry,
	})
	if err := storageredis.InitRedis(storageredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		logger.Errorf("init redis: %v", err)
		os.Exit(1)
	}
	if err := servicemgo.WaitReady(ctx); err != nil {
		logger.Errorf("mongo not ready: %v", err)
		os.Exit(1)
	}

	// admission control
	rules := make(map[string]gate.Rule, len(cfg.RateLimits))
	for action, rl := range cfg.RateLimits {
		rules[action] = gate.Rule{
			Limit:  rl.Limit,
			Window: time.Duration(rl.WindowMS) * time.Millisecond,
		}
	}
	limiter := gate.NewLimiter(storage.Windows{}, rules)

	// presence reconciliation
	kv := storage.Presence{TTL: time.Duration(cfg.Presence.TTLSeconds) * time.Second}
	reconciler := presence.NewReconciler(kv, presencemodel.MirrorStore{},
		time.Duration(cfg.Presence.HeartbeatMinutes)*time.Minute)
	safe.Go("presence-reconciler", func() {
		if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("presence reconciler stopped", zap.Error(err))
		}
	})

	// fan-out
	pusher, err := push.NewFCM(ctx, push.Config{
		CredentialsFile: cfg.Push.CredentialsFile,
		ProjectID:       cfg.Push.ProjectID,
	})
	if err != nil {
		logger.Errorf("init push provider: %v", err)
		os.Exit(1)
	}
	engine := fanout.NewEngine(fanout.Store{}, reconciler, fanout.Store{}, pusher, nil)

	// cascading deletion
	blobs, err := oss.NewStore(oss.Config{
		Endpoint:  cfg.OSS.Endpoint,
		AccessKey: cfg.OSS.AccessKey,
		SecretKey: cfg.OSS.SecretKey,
		UseSSL:    cfg.OSS.UseSSL,
		Bucket:    cfg.OSS.Bucket,
	})
	if err != nil {
		logger.Errorf("init object store: %v", err)
		os.Exit(1)
	}
	orchestrator := purge.NewOrchestrator(purge.MongoStore{}, storage.Prefixes{}, blobs,
		func(userID string) []string {
			return []string{
				storage.PresenceKeyPrefix(userID),
				storage.TypingKeyPrefix(userID),
				storage.RateKeyPrefix(userID),
			}
		},
		func(userID string) []string {
			return []string{"users/" + userID + "/"}
		})

	// event bus
	bus, err := natsx.NewClient(natsx.Config{Servers: cfg.Nats.Servers, Name: cfg.Nats.Name})
	if err != nil {
		logger.Errorf("connect nats: %v", err)
		os.Exit(1)
	}
	defer func() { _ = bus.Close() }()

	pool := dispatch.NewPool(ctx, cfg.Fanout.Workers, cfg.Fanout.QueueSize)
	defer pool.Close()

	consumer := natsx.NewConsumer(bus, natsx.WithRecovery(), natsx.WithLogging())
	if err := subscribeEvents(consumer, cfg.Nats.Queue, pool, limiter, reconciler, engine); err != nil {
		logger.Errorf("subscribe: %v", err)
		os.Exit(1)
	}

	// admin surface
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: admin.NewServer(orchestrator, reconciler, engine, bus, func() bool {
			select {
			case <-servicemgo.Ready():
				return true
			default:
				return false
			}
		}).Router(cfg.AdminToken),
	}
	safe.Go("admin-http", func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server", zap.Error(err))
		}
	})
	logger.Info("worker up", zap.Int("port", cfg.Port), zap.Strings("nats", cfg.Nats.Servers))

	<-ctx.Done()
	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
}

// subject per event kind; queue groups spread load across worker processes.
func subjectFor(k event.Kind) string { return "im." + string(k) }

func subscribeEvents(consumer *natsx.Consumer, queue string, pool *dispatch.Pool,
	limiter *gate.Limiter, rec *presence.Reconciler, engine *fanout.Engine) error {

	deliver := func(_ context.Context, msg natsx.Message) error {
		ev, err := event.Decode(msg.Data)
		if err != nil {
			return err
		}
		pool.Submit(func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, global.StoreTimeout())
			defer cancel()
			if action := ev.Action(); action != "" {
				if !limiter.Allow(ctx, ev.ActorID, action) {
					logger.Warn("event denied by rate limit",
						zap.String("kind", string(ev.Kind)), zap.String("actor", ev.ActorID))
					return
				}
			}
			if _, err := engine.Deliver(ctx, ev); err != nil {
				logger.Warn("delivery failed",
					zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		})
		return nil
	}

	for _, kind := range []event.Kind{
		event.KindMessageCreated, event.KindCallCreated, event.KindStatusUpdated,
	} {
		if err := consumer.Subscribe(subjectFor(kind), queue, deliver); err != nil {
			return err
		}
	}

	// presence pings renew the session without going through the pool; they
	// are cheap and ordering-sensitive per user
	return consumer.Subscribe(subjectFor(event.KindPresencePing), queue,
		func(ctx context.Context, msg natsx.Message) error {
			ev, err := event.Decode(msg.Data)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, global.StoreTimeout())
			defer cancel()
			return rec.SetOnline(ctx, ev.UserID, ev.SessionID)
		})
}
