package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nainya/bookquery/internal/metrics"
	"github.com/nainya/bookquery/internal/server"
	"github.com/nainya/bookquery/pkg/catalog"
	"github.com/nainya/bookquery/pkg/seed"
)

var seedIfEmpty bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query catalog over gRPC with a metrics endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.Int("grpc-port", 0, "gRPC listen port (default 50051)")
	f.Int("metrics-port", 0, "Observability HTTP port, 0 keeps the configured value")
	f.Int("max-documents", 0, "Maximum documents per response (default 1000)")
	f.BoolVar(&seedIfEmpty, "seed", false, "Load the seed dataset when the collection is empty")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.LogServerStart(cfg.GRPC.Port, cfg.Metrics.Port, cfg.DB.Path)

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if seedIfEmpty {
		if err := seedWhenEmpty(ctx, st); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)
	defer m.Close()

	cat := catalog.Bookstore()
	srv, err := server.NewServer(server.Config{
		Catalog:      cat,
		Store:        st,
		MaxDocuments: cfg.Server.MaxDocuments,
		Metrics:      m,
		Logger:       appLog,
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listen on :%d: %w", cfg.GRPC.Port, err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, appLog)))
	server.RegisterCatalogServiceServer(grpcServer, srv)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	var obs *server.ObservabilityServer
	if cfg.Metrics.Port > 0 {
		obs = server.NewObservabilityServer(cfg.Metrics.Port, reg, appLog)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)
		if obs != nil {
			obs.SetReady(true)
		}
		appLog.LogServerReady(cfg.GRPC.Port, cat.Len())
		return grpcServer.Serve(lis)
	})

	if obs != nil {
		g.Go(obs.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		appLog.LogServerShutdown()
		healthServer.Shutdown()
		if obs != nil {
			obs.SetReady(false)
		}
		grpcServer.GracefulStop()

		if obs == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return obs.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type counter interface {
	Count(ctx context.Context) (int64, error)
}

func seedWhenEmpty(ctx context.Context, st interface {
	counter
	seed.Inserter
}) error {
	n, err := st.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	records, err := loadRecords(cfg.Seed.File)
	if err != nil {
		return err
	}
	ids, err := seed.Into(ctx, st, records)
	if err != nil {
		return err
	}
	appLog.Info("Seeded empty collection").Int("documents", len(ids)).Send()
	return nil
}
