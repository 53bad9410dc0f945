package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/ingest"
	"github.com/gigapi/gigapi-chat/metrics"
	"github.com/gigapi/gigapi-chat/querier"
	"github.com/gigapi/gigapi-chat/rpc"
	"github.com/gigapi/gigapi-chat/schema"
	"github.com/gigapi/gigapi-chat/tenant"
	"github.com/gigapi/gigapi-chat/translator"
	"github.com/gigapi/gigapi-chat/workers"
)

// Ensure Orchestrator implements the adapters' service interface
var _ querier.Service = (*Orchestrator)(nil)

// Fetcher loads the payload of a remote procedure
type Fetcher interface {
	Call(ctx context.Context, accessToken, name string) ([]byte, error)
}

// Orchestrator is the single entry point of the chat pipeline. It resolves
// the tenant store, then composes ingestion, introspection, translation and
// execution. Engine calls run on the worker pool.
type Orchestrator struct {
	Registry   *tenant.Registry
	Pipeline   *ingest.Pipeline
	Translator *translator.Translator
	Client     core.QueryClient
	Fetcher    Fetcher
	Pool       *workers.Pool
	Metrics    *metrics.Metrics
}

// New builds an orchestrator and its collaborators from cfg. Collectors are
// registered with reg when it is not nil.
func New(cfg *config.Configuration, fs afero.Fs, reg prometheus.Registerer) *Orchestrator {
	m := metrics.New(reg)
	return &Orchestrator{
		Registry:   tenant.NewRegistry(tenant.NewProvisioner(fs, cfg.Store.Root), m),
		Pipeline:   ingest.NewPipeline(),
		Translator: translator.NewFromConfig(cfg.Completion, m),
		Client:     querier.NewQueryClient(cfg.Query.ReadOnly),
		Fetcher:    rpc.NewClient(cfg.RPC, m),
		Pool:       workers.New(cfg.Workers.Size, m),
		Metrics:    m,
	}
}

// Initialize fetches rpcName with the caller's token and stores the result
// as table.
func (o *Orchestrator) Initialize(ctx context.Context, tenantID, accessToken, table, rpcName string) (core.InitResponse, error) {
	if err := ingest.ValidateTableName(table); err != nil {
		return core.InitResponse{Message: fmt.Sprintf("Invalid table name '%s'", table)}, nil
	}
	store, err := o.Registry.GetOrCreate(ctx, tenantID)
	if err != nil {
		return core.InitResponse{}, err
	}

	payload, err := o.Fetcher.Call(ctx, accessToken, rpcName)
	if err != nil {
		o.Metrics.Ingestions.WithLabelValues("rpc_error").Inc()
		var callErr *rpc.CallError
		if errors.As(err, &callErr) {
			return core.InitResponse{
				Message:    fmt.Sprintf("API error: %s", callErr.Body),
				StatusCode: callErr.StatusCode,
			}, nil
		}
		return core.InitResponse{Message: fmt.Sprintf("Failed to fetch %s: %v", rpcName, err)}, nil
	}

	return o.ingest(ctx, store, table, rpcName, payload), nil
}

// Ingest stores payload as table, replacing any previous content
func (o *Orchestrator) Ingest(ctx context.Context, tenantID, table, source string, payload []byte) (core.InitResponse, error) {
	if err := ingest.ValidateTableName(table); err != nil {
		return core.InitResponse{Message: fmt.Sprintf("Invalid table name '%s'", table)}, nil
	}
	store, err := o.Registry.GetOrCreate(ctx, tenantID)
	if err != nil {
		return core.InitResponse{}, err
	}
	return o.ingest(ctx, store, table, source, payload), nil
}

func (o *Orchestrator) ingest(ctx context.Context, store *tenant.Store, table, source string, payload []byte) core.InitResponse {
	md, err := workers.Run(ctx, o.Pool, "ingest", func(ctx context.Context) (*core.TableMetadata, error) {
		return o.Pipeline.Ingest(ctx, store, table, source, payload)
	})
	if err != nil {
		o.Metrics.Ingestions.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, core.ErrEmptyPayload):
			return core.InitResponse{Message: fmt.Sprintf("No records to store in table '%s'", table)}
		case errors.Is(err, core.ErrInvalidTableName):
			return core.InitResponse{Message: fmt.Sprintf("Invalid table name '%s'", table)}
		default:
			return core.InitResponse{Message: "Failed to create table from API response"}
		}
	}
	o.Metrics.Ingestions.WithLabelValues("success").Inc()
	o.Metrics.IngestedRows.Add(float64(md.RowCount))

	var info string
	err = o.Pool.Do(ctx, "describe", func(ctx context.Context) error {
		var err error
		info, _, err = schema.Describe(ctx, store, table)
		return err
	})
	if err != nil {
		core.Warnf(ctx, "failed to describe %s: %v", table, err)
	}
	return core.InitResponse{
		IsSuccess: true,
		Message:   fmt.Sprintf("Successfully stored %s data in table '%s'", source, table),
		TableName: table,
		TableInfo: info,
	}
}

// Ask answers question with a query against table
func (o *Orchestrator) Ask(ctx context.Context, tenantID, table, question string) (core.QueryResponse, error) {
	store, err := o.Registry.GetOrCreate(ctx, tenantID)
	if err != nil {
		return core.QueryResponse{}, err
	}

	var (
		cols core.Schema
		ok   bool
	)
	err = o.Pool.Do(ctx, "schema", func(ctx context.Context) error {
		var err error
		cols, ok, err = schema.Of(ctx, store, table)
		return err
	})
	if err != nil {
		o.Metrics.Queries.WithLabelValues("failure").Inc()
		core.Errorf(ctx, "failed to read schema of %s: %v", table, err)
		return core.QueryResponse{Message: "Failed to read table schema"}, nil
	}
	if !ok {
		o.Metrics.Queries.WithLabelValues("not_found").Inc()
		return core.QueryResponse{Message: fmt.Sprintf("Table '%s' not found", table)}, nil
	}

	tr := o.Translator.TranslateWithSource(ctx, question, table, cols)
	core.Infof(ctx, "translated question on %s via %s: %s", table, tr.Source, tr.SQL)

	res, err := workers.Run(ctx, o.Pool, "query", func(ctx context.Context) (*core.QueryResult, error) {
		return o.Client.Execute(ctx, store, tr.SQL)
	})
	if err != nil {
		o.Metrics.Queries.WithLabelValues("failure").Inc()
		core.Warnf(ctx, "query on %s failed: %v", table, err)
		return core.QueryResponse{Message: "Query execution failed", Query: tr.SQL}, nil
	}

	o.Metrics.Queries.WithLabelValues("success").Inc()
	count := len(res.Rows)
	return core.QueryResponse{
		IsSuccess:   true,
		Query:       tr.SQL,
		Explanation: translator.Explain(tr.SQL),
		Result:      res,
		Count:       &count,
	}, nil
}

// ListTables returns the tables of a tenant
func (o *Orchestrator) ListTables(ctx context.Context, tenantID string) (core.TableListResponse, error) {
	store, err := o.Registry.GetOrCreate(ctx, tenantID)
	if err != nil {
		return core.TableListResponse{}, err
	}
	tables, err := workers.Run(ctx, o.Pool, "list", func(ctx context.Context) ([]string, error) {
		return schema.ListTables(ctx, store)
	})
	if err != nil {
		return core.TableListResponse{}, err
	}
	return core.TableListResponse{Tables: tables, Count: len(tables)}, nil
}

// TableInfo describes table; unknown tables fail with core.ErrNotFound
func (o *Orchestrator) TableInfo(ctx context.Context, tenantID, table string) (core.TableInfoResponse, error) {
	store, err := o.Registry.GetOrCreate(ctx, tenantID)
	if err != nil {
		return core.TableInfoResponse{}, err
	}
	var (
		info string
		ok   bool
	)
	err = o.Pool.Do(ctx, "describe", func(ctx context.Context) error {
		var err error
		info, ok, err = schema.Describe(ctx, store, table)
		return err
	})
	if err != nil {
		return core.TableInfoResponse{}, err
	}
	if !ok {
		return core.TableInfoResponse{}, fmt.Errorf("%w: table %s", core.ErrNotFound, table)
	}
	return core.TableInfoResponse{TableName: table, Info: info}, nil
}

// Execute runs a raw statement against the tenant store
func (o *Orchestrator) Execute(ctx context.Context, tenantID, query string) (*core.QueryResult, error) {
	store, err := o.Registry.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return workers.Run(ctx, o.Pool, "query", func(ctx context.Context) (*core.QueryResult, error) {
		return o.Client.Execute(ctx, store, query)
	})
}

// Close closes every tenant store
func (o *Orchestrator) Close() error {
	return o.Registry.CloseAll()
}
