package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/ata-marzban/filterd/internal/admin"
	"github.com/ata-marzban/filterd/internal/metrics"
	"github.com/ata-marzban/filterd/internal/promql"
	"github.com/ata-marzban/filterd/internal/server"
	"github.com/ata-marzban/filterd/internal/store"
	"github.com/ata-marzban/filterd/internal/validation"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	maxFilterLength := flag.Int("max-filter-length", validation.DefaultMaxFilterLength, "maximum filter size in bytes, 0 disables the limit")
	pageSize := flag.Int("page-size", 1000, "default page size for list calls")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if *maxFilterLength == 0 {
		*maxFilterLength = -1
	}

	s := store.NewMemoryStore()
	m := metrics.New()

	// gRPC server, plaintext.
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryInterceptor(logger, m)))
	filterSvc := server.NewFilterServiceServer(s, server.Options{
		Logger:          logger,
		Metrics:         m,
		MaxFilterLength: *maxFilterLength,
		PageSize:        *pageSize,
	})
	server.RegisterFilterServiceServer(grpcServer, filterSvc)
	reflection.Register(grpcServer)

	// REST routes call the service in-process.
	gwMux := runtime.NewServeMux()
	if err := server.RegisterFilterServiceHandlerServer(context.Background(), gwMux, filterSvc); err != nil {
		logger.Error("failed to register grpc-gateway handler", "error", err)
		os.Exit(1)
	}

	promHandler := promql.NewHandler(s)
	httpMux := http.NewServeMux()
	httpMux.Handle("/v1/", gwMux)
	httpMux.Handle("/v1/selector", promHandler)
	httpMux.Handle("/v1/projects/{project}/location/", promHandler)
	httpMux.Handle("/admin/", admin.NewHandler(s))
	httpMux.Handle("/metrics", m.Handler())

	addr := fmt.Sprintf(":%d", *port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}

	// gRPC and HTTP share the port.
	cm := cmux.New(lis)
	grpcLis := cm.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpLis := cm.Match(cmux.Any())

	httpServer := &http.Server{Handler: httpMux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server error", "error", err)
		}
	}()
	go func() {
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) && !isClosedErr(err) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("filterd started",
		"port", *port,
		"grpc", fmt.Sprintf("localhost:%d", *port),
		"rest", fmt.Sprintf("http://localhost:%d/v1/parse", *port),
		"promql", fmt.Sprintf("http://localhost:%d/v1/projects/{project}/location/global/prometheus/api/v1/", *port),
		"admin", fmt.Sprintf("http://localhost:%d/admin/", *port),
		"metrics", fmt.Sprintf("http://localhost:%d/metrics", *port),
		"max_filter_length", *maxFilterLength,
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown", "error", err)
		}
		lis.Close()
	}()

	if err := cm.Serve(); err != nil {
		// cmux reports the closed listener on shutdown.
		if !isClosedErr(err) {
			logger.Error("cmux serve error", "error", err)
			os.Exit(1)
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, cmux.ErrListenerClosed) || errors.Is(err, cmux.ErrServerClosed)
}
