package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/signalsfoundry/flightplan-simulator/core"
	"github.com/signalsfoundry/flightplan-simulator/internal/api"
	"github.com/signalsfoundry/flightplan-simulator/internal/events"
	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/internal/mockroute"
	"github.com/signalsfoundry/flightplan-simulator/internal/observability"
	"github.com/signalsfoundry/flightplan-simulator/internal/preauth"
	"github.com/signalsfoundry/flightplan-simulator/internal/rand"
	"github.com/signalsfoundry/flightplan-simulator/internal/sim"
	"github.com/signalsfoundry/flightplan-simulator/kb"
	"github.com/signalsfoundry/flightplan-simulator/timectrl"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "flightsim"

// Config is the process configuration assembled from flags and environment.
type Config struct {
	HTTPAddress     string
	GRPCAddress     string
	ShutdownTimeout time.Duration
	ClockMode       timectrl.Mode

	Ledger  ledger.Config
	Kafka   events.KafkaConfig
	Sim     sim.Config
	Tracing observability.TracingConfig
}

func main() {
	httpAddr := flag.String("http-addr", ":8080", "HTTP address for the API, /healthz and /metrics")
	grpcAddr := flag.String("grpc-addr", ":50051", "TCP address for the gRPC health service")
	clock := flag.String("clock", os.Getenv("SIM_CLOCK_MODE"), "simulation clock: realtime or accelerated")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := loadConfig(*httpAddr, *grpcAddr, *clock)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	httpLis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddress), logging.Err(err))
		os.Exit(1)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddress), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "flight simulator exited", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(httpAddr, grpcAddr, clock string) (Config, error) {
	mode, err := timectrl.ParseMode(clock)
	if err != nil {
		return Config{}, err
	}
	simCfg, err := sim.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	ledgerCfg := ledger.ConfigFromEnv()
	tracing := observability.TracingConfigFromEnv()
	tracing.LedgerURL = ledgerCfg.BaseURL
	tracing.ClockMode = mode.String()
	return Config{
		HTTPAddress:     httpAddr,
		GRPCAddress:     grpcAddr,
		ShutdownTimeout: 5 * time.Second,
		ClockMode:       mode,
		Ledger:          ledgerCfg,
		Kafka:           events.KafkaConfigFromEnv(),
		Sim:             simCfg,
		Tracing:         tracing,
	}, nil
}

// run wires every component, serves until ctx is cancelled and then shuts
// down in reverse order.
func run(ctx context.Context, cfg Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return fmt.Errorf("api metrics: %w", err)
	}
	simMetrics, err := observability.NewSimulationCollector(reg)
	if err != nil {
		return fmt.Errorf("simulation metrics: %w", err)
	}

	client, err := ledger.NewClient(cfg.Ledger, log)
	if err != nil {
		return err
	}
	zones := ledger.NewCachedZoneSource(client, cfg.Ledger.ZoneCacheTTL, log)
	characterizer := core.NewCharacterizer(zones, log)
	workflow := preauth.New(characterizer, client,
		preauth.WithDecisionRecorder(simMetrics),
		preauth.WithLogger(log),
	)

	rng := rand.New()
	if cfg.Sim.Seed != 0 {
		rng = rand.NewSeeded(cfg.Sim.Seed)
	}

	var mirrors []events.Sink
	if cfg.Kafka.Enabled() {
		kafkaSink := events.NewKafkaSink(cfg.Kafka)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				log.Warn(context.Background(), "closing kafka writer failed", logging.Err(err))
			}
		}()
		mirrors = append(mirrors, kafkaSink)
		log.Info(ctx, "mirroring telemetry to kafka", logging.String("topic", cfg.Kafka.Topic))
	}
	sink := events.NewFanout(client, simMetrics, log, mirrors...)

	clock := timectrl.NewTimeController(cfg.ClockMode)
	clock.AddListener(simMetrics.SetSimTime)
	simMetrics.SetSimTime(clock.Now())

	store := kb.NewKnowledgeBase(kb.WithMetricsRecorder(simMetrics))
	scheduler, err := sim.New(cfg.Sim, sim.Deps{
		Store:         store,
		Fleet:         client,
		Routes:        mockroute.NewGenerator(zones, rng, log),
		Characterizer: characterizer,
		PreAuth:       workflow,
		Sink:          sink,
		Clock:         clock,
		Rand:          rng,
		Metrics:       simMetrics,
		Log:           log,
	})
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(api.Config{
		PreAuth:        workflow,
		Characterizer:  characterizer,
		Zones:          zones,
		ZoneCache:      zones,
		Minter:         client,
		Store:          store,
		Metrics:        apiMetrics.Middleware,
		MetricsHandler: apiMetrics.Handler(),
		Log:            log,
	})
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			apiMetrics.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "serving HTTP API", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info(ctx, "starting scheduler", logging.String("clock", cfg.ClockMode.String()))
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down flight simulator")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "http shutdown incomplete", logging.Err(err))
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
