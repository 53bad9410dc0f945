package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/querier"
	"github.com/gigapi/gigapi-chat/session"
)

func main() {
	configFlag := flag.String("config", "", "Path to the configuration file")
	queryFlag := flag.String("query", "", "Execute a single query and exit")
	tenantFlag := flag.String("tenant", "", "Tenant to run -query against")
	flag.Parse()

	config.InitConfig(*configFlag)
	core.SetLogLevel(config.Config.LogLevel)
	ctx := core.WithDefaultLogger(context.Background(), "main")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orchestrator := session.New(config.Config, afero.NewOsFs(), reg)
	defer orchestrator.Close()

	// If query flag is provided, execute query and exit
	if *queryFlag != "" {
		if err := runQuery(ctx, orchestrator, *tenantFlag, *queryFlag); err != nil {
			core.Errorf(ctx, "Query error: %v", err)
			orchestrator.Close()
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := mux.NewRouter()
	querier.NewServer(orchestrator, reg).RegisterRoutes(r)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Config.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		core.Infof(ctx, "GigAPI chat server running at http://localhost:%d", config.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("main server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return querier.StartFlightSQLServer(gctx, config.Config.FlightSqlPort, orchestrator)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		core.Errorf(ctx, "Server stopped: %v", err)
		orchestrator.Close()
		os.Exit(1)
	}
	core.Infof(ctx, "Server stopped")
}

func runQuery(ctx context.Context, svc querier.Service, tenantID, query string) error {
	res, err := svc.Execute(ctx, tenantID, query)
	if err != nil {
		return err
	}
	jsonData, err := json.MarshalIndent(querier.ProcessResultForJSON(res), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Println(string(jsonData))
	return nil
}
