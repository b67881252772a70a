package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"

	"chordmr/internal/chord"
	"chordmr/internal/config"
	"chordmr/internal/coordinator"
	"chordmr/internal/coordinator/httpapi"
	"chordmr/internal/dht"
	"chordmr/internal/directory"
	"chordmr/internal/kernel"
	"chordmr/internal/logger"
	zapfactory "chordmr/internal/logger/zap"
	"chordmr/internal/ring"
	"chordmr/internal/rpc"
	"chordmr/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(zapfactory.Config{
			Filename:   cfg.Logger.File,
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAgeDays: cfg.Logger.MaxAgeDays,
			Level:      cfg.Logger.Level,
			Console:    true,
		})
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		lgr = zapLog
	} else {
		lgr = logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	lis, err := net.Listen("tcp", cfg.Node.Bind)
	if err != nil {
		lgr.Error("Fatal: failed to initialize listener", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }()
	advertised := fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port)
	lgr.Debug("created listener", logger.F("bind", cfg.Node.Bind), logger.F("advertised", advertised))

	space, err := ring.NewSpace(cfg.Ring.IDBits)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err))
		os.Exit(1)
	}

	var selfID ring.ID
	if cfg.Node.ID == "" {
		selfID = space.IDFromString(advertised)
	} else {
		selfID, err = space.FromHexString(cfg.Node.ID)
		if err != nil {
			lgr.Error("invalid node ID in configuration", logger.F("err", err))
			os.Exit(1)
		}
	}
	self := chord.NodeRef{ID: selfID, Addr: advertised}
	lgr = lgr.Named("node").With(logger.F("node_id", selfID.ToHexString(true)))
	lgr.Info("node initializing", logger.F("addr", advertised))

	shutdownTracer := telemetry.InitTracer(context.Background(), cfg.Telemetry.Tracing, "chordmr-node", selfID.ToHexString(false), lgr)
	defer shutdownTracer(context.Background())

	pool := rpc.NewPool()
	defer pool.Close()
	client := rpc.NewClient(pool, selfID)

	rt := chord.NewRoutingTable(self, space, cfg.Ring.SuccessorListSize)
	cn := chord.New(rt, client, chord.WithLogger(lgr.Named("chord")), chord.WithRequestTimeout(time.Duration(cfg.Ring.RequestTimeout)))

	dhtCfg := dht.Config{
		ReplicationFactor: cfg.Ring.ReplicationFactor,
		ReplicationPeriod: 2 * time.Second,
	}
	dhtNode := dht.NewNode(cn, client, dhtCfg, lgr.Named("dht"))

	kernels := kernel.NewRegistry()
	kernel.RegisterBuiltins(kernels)

	worker := coordinator.NewWorker(dhtNode, kernels, lgr.Named("worker"))

	coordCfg := coordinator.Config{
		ItemsPerChunk:        cfg.Job.ItemsPerChunk,
		MaxTaskTimeout:       time.Duration(cfg.Job.MaxTaskTimeout),
		MaxTaskAttempts:      cfg.Job.MaxTaskAttempts,
		WorkerHealthInterval: time.Duration(cfg.Job.WorkerHealthInterval),
	}
	coord := coordinator.New(dhtNode, cn, client, kernels, coordCfg, lgr.Named("coordinator"))

	var grpcOpts []grpc.ServerOption
	if cfg.Telemetry.Tracing.Enabled {
		grpcOpts = append(grpcOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(otel.GetTracerProvider()),
			otelgrpc.WithPropagators(otel.GetTextMapPropagator()),
		)))
	}
	server := rpc.NewServer(cn, dhtNode, worker, lgr.Named("rpc-server"), grpcOpts...)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port+1)
	httpServer := httpapi.New(coord, cn, httpAddr, lgr.Named("http-server"))

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(lis) }()
	lgr.Debug("gRPC server started")

	httpErr := make(chan error, 1)
	go func() { httpErr <- httpServer.Start() }()
	lgr.Debug("HTTP server started", logger.F("addr", httpAddr))

	var dir directory.Directory
	switch cfg.Bootstrap.Mode {
	case "route53":
		dir, err = directory.NewRoute53(context.Background(), cfg.Bootstrap.Route53)
		if err != nil {
			lgr.Error("failed to initialize route53 directory", logger.F("err", err))
			server.ForceStop()
			os.Exit(1)
		}
	default:
		dir = directory.NewStatic(cfg.Bootstrap.Peers)
	}

	discoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	peers, err := dir.Discover(discoverCtx)
	cancel()
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err))
		server.ForceStop()
		os.Exit(1)
	}
	lgr.Info("resolved bootstrap peers", logger.F("peers", peers))

	if len(peers) != 0 {
		joinCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := cn.Join(joinCtx, peers)
		cancel()
		if err != nil {
			lgr.Error("failed to join ring", logger.F("err", err))
			server.ForceStop()
			os.Exit(1)
		}
		lgr.Debug("joined ring")
	} else {
		cn.CreateNewDHT()
		lgr.Debug("created new ring")
	}

	registerCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	nodeIDHex := selfID.ToHexString(false)
	if err := dir.Register(registerCtx, nodeIDHex, advertised); err != nil {
		lgr.Warn("failed to register with directory", logger.F("err", err))
	}
	cancel()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dir.Deregister(ctx, nodeIDHex); err != nil {
			lgr.Warn("failed to deregister from directory", logger.F("err", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cn.StartStabilizers(chord.StabilizationConfig{
		StabilizePeriod:        time.Duration(cfg.Ring.StabilizeInterval),
		FixFingersPeriod:       time.Duration(cfg.Ring.FixFingersInterval),
		CheckPredecessorPeriod: time.Duration(cfg.Ring.CheckPredecessorInterval),
	})
	dhtNode.StartReplicationSweep(dhtCfg.ReplicationPeriod)
	lgr.Debug("stabilizers and replication sweep started")

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping servers gracefully...")
		stop()
		coord.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Stop(); err != nil {
			lgr.Warn("HTTP server shutdown error", logger.F("err", err))
		}
		cancel()

		done := make(chan struct{})
		go func() {
			server.Stop()
			close(done)
		}()
		select {
		case <-done:
			lgr.Info("gRPC server stopped gracefully")
		case <-time.After(5 * time.Second):
			lgr.Warn("graceful stop timed out, forcing shutdown")
			server.ForceStop()
		}
		cn.Stop()
		dhtNode.Stop()

	case err := <-serveErr:
		lgr.Error("gRPC server terminated unexpectedly", logger.F("err", err))
		stop()
		_ = httpServer.Stop()
		coord.Stop()
		cn.Stop()
		dhtNode.Stop()
		os.Exit(1)

	case err := <-httpErr:
		lgr.Error("HTTP server terminated unexpectedly", logger.F("err", err))
		stop()
		server.ForceStop()
		coord.Stop()
		cn.Stop()
		dhtNode.Stop()
		os.Exit(1)
	}
}
