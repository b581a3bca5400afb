package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"pkg.mon.icu/concord"
	"pkg.mon.icu/concord/internal/config"
)

type app struct {
	ctx    context.Context
	cancel context.CancelFunc

	logConf zap.Config
	logger  *zap.Logger

	config *config.Config

	client *concord.Client
}

func newApp(ctx context.Context, lcf zap.Config, log *zap.Logger) (*app, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &app{ctx: ctx, cancel: cancel, logConf: lcf, logger: log}
	var err error

	log.Debug("Loading configuration.")
	a.config, err = config.Read()
	if err != nil {
		return nil, fmt.Errorf("couldn't load configuration: %w", err)
	}

	log.Debug("Successfully loaded configuration (also switching log level.)")
	lcf.Level.SetLevel(a.config.Logging.Level)

	log.Debug("Initializing Client struct.")
	a.client = concord.NewClient(ctx, log, concord.Config{
		Auth:        a.config.Gateway.Auth,
		GatewayURL:  a.config.Gateway.URL,
		RestBaseURL: a.config.Rest.BaseURL,
		Guilds:      a.config.Gateway.Guilds,
		Presence:    a.config.Gateway.Presence,
	})

	return a, nil
}

func (a *app) Run() error {
	a.logger.Debug("Connecting to the chat gateway.")
	unsub := a.client.Subscribe(a.logEvent)
	defer unsub()

	if err := a.client.Start(); err != nil {
		return fmt.Errorf("couldn't connect to the gateway: %s", err)
	}
	defer func() {
		a.logger.Debug("Closing gateway connection.")
		a.client.Stop()
		a.logger.Debug("Closed gateway connection.")
	}()
	a.logger.Debug("Successfully connected to the chat gateway.")

	a.logger.Info("Launch complete. Send SIGINT to gracefully terminate.")
	<-a.ctx.Done()
	a.logger.Info("SIGINT received, terminating.")

	return a.ctx.Err()
}

func (a *app) logEvent(ev concord.Event) {
	switch e := ev.(type) {
	case *concord.ReadyEvent:
		name := "(unknown)"
		if e.Self != nil {
			name = e.Self.Tag()
		}
		a.logger.Sugar().Infof("Logged in as %s (%d guilds).", name, len(e.GuildIDs))
	case *concord.MessageCreatedEvent:
		a.logger.Sugar().Infof("Message %s in channel %s: %q.", e.Message.ID, e.Message.ChannelID, e.Message.Content)
	case *concord.DisconnectedEvent:
		a.logger.Sugar().Warnf("Disconnected (%s), resumable: %t.", e.Reason, e.Resumable)
	case *concord.ConnectedEvent:
		a.logger.Sugar().Infof("Connected (resumed: %t).", e.Resumed)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	lcf := zap.NewDevelopmentConfig() // to later switch level without reallocation
	lcf.Level.SetLevel(zapcore.DebugLevel)
	lcf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	lcf.DisableCaller = true
	log, _ := lcf.Build()

	log.Info("Initializing application.")
	a, err := newApp(ctx, lcf, log)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Sugar().Fatalf("Couldn't initialize application: %s.", err)
		}

		return
	}

	log.Debug("Initialization tasks complete, continuing with launch.")
	if err := a.Run(); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Sugar().Fatalf("Application crashed: %s.", err)
		}
	}
}
