package main

import (
	"context"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/handler"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/middleware"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/router"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/service"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/config"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/database"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/events"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/jenkins"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/lock"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/notify"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/redis"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/storage"
)

const eventQueueSize = 256

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	gormDB, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := gormDB.AutoMigrate(&model.PipelineRun{}); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	var locker lock.IdentityLocker
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient, "dashboard:reconcile", 30*time.Second, 10*time.Second)
		hlog.Info("reconcile locking via redis")
	} else {
		locker = lock.NewKeyedMutex()
	}

	archive, err := storage.New(cfg.Archive)
	if err != nil {
		log.Fatalf("init log archive: %v", err)
	}
	if archive != nil {
		hlog.Infof("log archive enabled, type %s", archive.Type())
	}

	var channels []notify.Notifier
	if slack := notify.NewSlackNotifier(cfg.Alerts.SlackWebhookURL); slack != nil {
		channels = append(channels, slack)
	}
	if email := notify.NewEmailNotifier(cfg.Alerts.SMTP); email != nil {
		channels = append(channels, email)
	}
	notifier := notify.NewMulti(channels...)
	if !notifier.Configured() {
		hlog.Warn("no alert channel configured, failure notifications disabled")
	}

	queue := events.NewQueue(eventQueueSize)

	displayLoc, err := time.LoadLocation(cfg.Jenkins.DisplayTimezone)
	if err != nil {
		hlog.Warnf("unknown display timezone %q, using UTC", cfg.Jenkins.DisplayTimezone)
		displayLoc = time.UTC
	}

	jenkinsClient := jenkins.NewClient(cfg.Jenkins)
	if jenkinsClient == nil {
		hlog.Warn("jenkins base_url not configured, polling and sync disabled")
	}

	svc := service.NewService(gormDB, service.Deps{
		Locker:          locker,
		Notifier:        notifier,
		Publisher:       queue,
		Jenkins:         jenkinsClient,
		Archive:         archive,
		DefaultActor:    cfg.Jenkins.DefaultActor,
		DisplayLocation: displayLoc,
		BuildsPerJob:    cfg.Poller.BuildsPerJob,
	})

	var poller *service.Poller
	if cfg.Poller.Enabled && svc.JenkinsConfigured() {
		poller = service.NewPoller(svc, cfg.Poller.Interval())
		if err := poller.Start(); err != nil {
			log.Fatalf("start poller: %v", err)
		}
	}

	h := server.New(server.WithHostPorts(cfg.Server.Address))
	h.Use(middleware.Recovery(), middleware.CORS(&cfg.CORS), middleware.Logging())

	router.Register(h,
		handler.NewRunHandler(svc),
		handler.NewWebhookHandler(svc),
		handler.NewJenkinsHandler(svc),
		handler.NewStreamHandler(queue),
	)

	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		if poller != nil {
			poller.Stop(ctx)
		}
		queue.Close()
	})

	hlog.Infof("pipeline reliability dashboard listening on %s", cfg.Server.Address)
	h.Spin()
}
