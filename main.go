package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinbot/config"
	"coinbot/events"
	"coinbot/game"
	"coinbot/logger"
	"coinbot/monitor"
	"coinbot/persistence"
	"coinbot/rpc"
	"coinbot/server"
	"coinbot/services"
)

var configPath = flag.String("config", ".", "配置文件目录")

func main() {
	flag.Parse()
	logger.Init()
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalw("load config failed", "err", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalw("open store failed", "err", err)
	}
	defer store.Close()

	hub := server.NewHub()
	publisher := events.Multi{hub}
	if cfg.RabbitMQ.Enabled {
		amqp, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Log.Fatalw("connect rabbitmq failed", "err", err)
		}
		defer amqp.Close()
		publisher = append(publisher, amqp)
	}

	metrics := monitor.NewMetrics()
	users := services.NewUserService(store, cfg.Game.InitialCoins)
	achievements := services.NewAchievementService(store, users, publisher)
	if err := achievements.InitializeDefaults(); err != nil {
		logger.Log.Fatalw("init achievements failed", "err", err)
	}
	checkin := services.NewCheckInService(store, users, achievements, publisher, metrics)
	registry := game.NewRegistry(game.NewRouletteEngine())
	games := services.NewGameService(store, users, achievements, registry, publisher, metrics)

	metrics.StartServer(cfg.Server.MetricsAddress)
	if err := rpc.Start(cfg.Server.RPCAddress, rpc.NewAdmin(users, games)); err != nil {
		logger.Log.Fatalw("start rpc failed", "err", err)
	}

	srv := server.New(users, checkin, games, achievements, hub)
	go func() {
		if err := srv.Run(cfg.Server.HTTPAddress); err != nil {
			logger.Log.Fatalw("http server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Errorw("shutdown failed", "err", err)
	}
}

func openStore(cfg *config.Config) (persistence.Store, error) {
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case "gorm":
		return persistence.NewGormStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "postgres":
		return persistence.NewPostgresStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
