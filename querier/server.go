// server.go
package querier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gigapi/gigapi-chat/core"
)

// payloads above this size are rejected
const maxPayloadSize = 64 << 20

// Service is the chat pipeline as seen by the adapters. Errors are hard
// faults such as a tenant store that cannot be provisioned; ingestion and
// query failures are reported inside the responses.
type Service interface {
	Initialize(ctx context.Context, tenantID, accessToken, table, rpcName string) (core.InitResponse, error)
	Ingest(ctx context.Context, tenantID, table, source string, payload []byte) (core.InitResponse, error)
	Ask(ctx context.Context, tenantID, table, question string) (core.QueryResponse, error)
	ListTables(ctx context.Context, tenantID string) (core.TableListResponse, error)
	TableInfo(ctx context.Context, tenantID, table string) (core.TableInfoResponse, error)
	Execute(ctx context.Context, tenantID, query string) (*core.QueryResult, error)
}

// Server represents the API server
type Server struct {
	Service  Service
	Gatherer prometheus.Gatherer
}

// NewServer creates a new server instance
func NewServer(svc Service, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{Service: svc, Gatherer: gatherer}
}

// InitRequest asks to populate a table from a remote procedure
type InitRequest struct {
	TableName string `json:"table_name"`
	RPCName   string `json:"rpc_name"`
}

// SQLRequest is a raw statement for the SQL console
type SQLRequest struct {
	Query string `json:"query"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Route is a chat endpoint, independent of the router serving it
type Route struct {
	Path    string
	Methods []string
	Handler http.HandlerFunc
}

// Routes returns the tenant scoped chat endpoints
func (s *Server) Routes() []Route {
	post := []string{http.MethodPost, http.MethodOptions}
	get := []string{http.MethodGet, http.MethodOptions}
	return []Route{
		{Path: "/api/chat/init", Methods: post, Handler: s.withTenant(s.HandleInit)},
		{Path: "/api/chat/ingest/{table}", Methods: post, Handler: s.withTenant(s.HandleIngest)},
		{Path: "/api/chat/query", Methods: post, Handler: s.withTenant(s.HandleQuery)},
		{Path: "/api/chat/sql", Methods: post, Handler: s.withTenant(s.HandleSQL)},
		{Path: "/api/chat/tables", Methods: get, Handler: s.withTenant(s.HandleTables)},
		{Path: "/api/chat/tables/{table}", Methods: get, Handler: s.withTenant(s.HandleTableInfo)},
	}
}

// RegisterRoutes adds the chat routes, /health and /metrics to the router
func (s *Server) RegisterRoutes(r *mux.Router) {
	for _, route := range s.Routes() {
		r.HandleFunc(route.Path, route.Handler).Methods(route.Methods...)
	}
	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// pathVar reads a route variable. Routers other than mux fall back to the
// last path segment.
func pathVar(r *http.Request, name string) string {
	if v, ok := mux.Vars(r)[name]; ok {
		return v
	}
	return path.Base(r.URL.Path)
}

type tenantHandler func(w http.ResponseWriter, r *http.Request, tenantID string)

// withTenant answers preflight requests, resolves the tenant from
// X-Scope-OrgID and attaches a request logger.
func (s *Server) withTenant(h tenantHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		tenantID, ctx, err := user.ExtractOrgIDFromHTTPRequest(r)
		if err != nil {
			sendErrorResponse(w, "Missing "+user.OrgIDHeaderName+" header", http.StatusUnauthorized)
			return
		}
		ctx = core.WithDefaultLogger(ctx, uuid.NewString())
		h(w, r.WithContext(ctx), tenantID)
	}
}

// addCORSHeaders adds CORS headers to the response
func addCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+user.OrgIDHeaderName)
}

// bearerToken returns the token of an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// HandleInit handles the /api/chat/init endpoint
func (s *Server) HandleInit(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TableName == "" || req.RPCName == "" {
		sendErrorResponse(w, "Missing table_name or rpc_name", http.StatusBadRequest)
		return
	}
	token := bearerToken(r)
	if token == "" {
		sendErrorResponse(w, "Missing bearer token", http.StatusUnauthorized)
		return
	}

	resp, err := s.Service.Initialize(r.Context(), tenantID, token, req.TableName, req.RPCName)
	if err != nil {
		sendFault(w, r.Context(), err)
		return
	}
	sendInitResponse(w, resp)
}

// HandleIngest handles the /api/chat/ingest/{table} endpoint. The body is the
// payload itself; the source identifier comes from the "source" parameter.
func (s *Server) HandleIngest(w http.ResponseWriter, r *http.Request, tenantID string) {
	table := pathVar(r, "table")
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize+1))
	if err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload) > maxPayloadSize {
		sendErrorResponse(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	resp, err := s.Service.Ingest(r.Context(), tenantID, table, source, payload)
	if err != nil {
		sendFault(w, r.Context(), err)
		return
	}
	sendInitResponse(w, resp)
}

// HandleQuery handles the /api/chat/query endpoint
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req core.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TableName == "" || req.Text() == "" {
		sendErrorResponse(w, "Missing table_name or question", http.StatusBadRequest)
		return
	}

	resp, err := s.Service.Ask(r.Context(), tenantID, req.TableName, req.Text())
	if err != nil {
		sendFault(w, r.Context(), err)
		return
	}
	if resp.Result != nil {
		resp.Result = ProcessResultForJSON(resp.Result)
	}
	status := http.StatusOK
	if !resp.IsSuccess {
		status = http.StatusBadRequest
	}
	sendJSON(w, status, resp)
}

// HandleSQL handles the /api/chat/sql endpoint, the raw SQL console of a tenant
func (s *Server) HandleSQL(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req SQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		sendErrorResponse(w, "Missing query parameter", http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	formatter, ok := formatters[format]
	if !ok {
		sendErrorResponse(w, "Unsupported format "+format, http.StatusBadRequest)
		return
	}

	res, err := s.Service.Execute(r.Context(), tenantID, req.Query)
	if err != nil {
		if errors.Is(err, core.ErrExecutionFailure) {
			sendErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		sendFault(w, r.Context(), err)
		return
	}
	if err := formatter(res, w); err != nil {
		core.Errorf(r.Context(), "failed to write response: %v", err)
	}
}

// HandleTables handles the /api/chat/tables endpoint
func (s *Server) HandleTables(w http.ResponseWriter, r *http.Request, tenantID string) {
	resp, err := s.Service.ListTables(r.Context(), tenantID)
	if err != nil {
		sendFault(w, r.Context(), err)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

// HandleTableInfo handles the /api/chat/tables/{table} endpoint
func (s *Server) HandleTableInfo(w http.ResponseWriter, r *http.Request, tenantID string) {
	table := pathVar(r, "table")
	resp, err := s.Service.TableInfo(r.Context(), tenantID, table)
	if errors.Is(err, core.ErrNotFound) {
		sendErrorResponse(w, "Table '"+table+"' not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendFault(w, r.Context(), err)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

// HandleHealth is the health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func sendInitResponse(w http.ResponseWriter, resp core.InitResponse) {
	status := http.StatusOK
	if !resp.IsSuccess {
		status = http.StatusBadRequest
	}
	sendJSON(w, status, resp)
}

// sendFault reports an error that is not part of a structured response
func sendFault(w http.ResponseWriter, ctx context.Context, err error) {
	core.Errorf(ctx, "request failed: %v", err)
	switch {
	case errors.Is(err, core.ErrInvalidTenantID):
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrProvision):
		sendErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	default:
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Send an error response in JSON format
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, statusCode, ErrorResponse{Error: message})
}
