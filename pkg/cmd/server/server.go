package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/db/postgres"
	"github.com/gridrace/race-service-go/pkg/processing/race"
	"github.com/gridrace/race-service-go/pkg/proxy"
	localproxy "github.com/gridrace/race-service-go/pkg/proxy/local"
	natsproxy "github.com/gridrace/race-service-go/pkg/proxy/nats"
	"github.com/gridrace/race-service-go/pkg/repository/pg"
	"github.com/gridrace/race-service-go/pkg/server/ws"
	"github.com/gridrace/race-service-go/pkg/utils"
	"github.com/gridrace/race-service-go/pkg/world"
)

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the race service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer()
		},
	}
	cmd.Flags().StringVar(&config.WebsocketAddr,
		"websocket-addr",
		"localhost:8084",
		"listen address for the player websocket endpoint")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"info",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

//nolint:funlen,cyclop // startup wiring
func startServer() error {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}

	log.ResetDefault(logger)

	log.Debug("Config:",
		log.String("db", config.DB),
		log.String("nats", config.NatsURL),
		log.String("websocketAddr", config.WebsocketAddr),
		log.Int("crs", config.CRS),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	log.Info("Starting server")
	pool := postgres.InitWithUrl(
		config.DB,
		postgres.WithTracer(logger.Named("sql")))
	defer pool.Close()

	dataProxy, err := setupProxy()
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	defer dataProxy.Close()

	cfg := config.FromResolved()
	raceWorld, err := world.NewWorld(world.WithConfig(cfg))
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	ctrl := race.NewController(
		race.WithConfig(cfg),
		race.WithWorld(raceWorld),
		race.WithRepositories(pg.NewRepositoriesFromPool(pool)),
		race.WithTxManager(pg.NewTransactionManager(pool)),
		race.WithProxy(dataProxy),
	)
	wsServer := ws.NewServer(
		ws.WithAddr(config.WebsocketAddr),
		ws.WithController(ctrl),
		ws.WithDataProxy(dataProxy),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- wsServer.ListenAndServe(ctx)
	}()

	log.Info("Server started")
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case v := <-sigChan:
		log.Debug("Got signal ", log.Any("signal", v))
		cancel()
		if err := <-serverErr; err != nil {
			log.Warn("server shutdown", log.ErrorField(err))
		}
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", log.ErrorField(err))
			return err
		}
	}

	log.Info("Server terminated")
	return nil
}

// setupProxy picks the event distribution. With a NATS url configured the
// events are bridged across instances, otherwise they fan out in-process
// only.
func setupProxy() (proxy.DataProxy, error) {
	if config.NatsURL == "" {
		log.Info("Using local proxy for race events")
		return localproxy.NewLocalProxy(), nil
	}
	log.Info("Using NATS proxy for race events", log.String("url", config.NatsURL))
	conn, err := nats.Connect(config.NatsURL)
	if err != nil {
		return nil, err
	}
	return natsproxy.NewNatsProxy(conn)
}

func setupGoRoutinesDump() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGQUIT)
	go func() {
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func waitForRequiredServices() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	wg := sync.WaitGroup{}
	checkTCP := func(addr string) {
		defer wg.Done()
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
	}
	wg.Add(1)
	go checkTCP(utils.ExtractFromDBURL(config.DB))
	if config.NatsURL != "" {
		wg.Add(1)
		go checkTCP(utils.ExtractFromNatsURL(config.NatsURL))
	}
	wg.Wait()
}
