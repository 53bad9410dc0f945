package querier

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/flight"
	flightgen "github.com/apache/arrow/go/v14/arrow/flight/gen/flight"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/google/uuid"
	"github.com/grafana/dskit/user"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/gigapi/gigapi-chat/core"
)

const statementQueryType = "type.googleapis.com/arrow.flight.protocol.sql.CommandStatementQuery"

const (
	// resultTTL bounds how long a result waits for its DoGet
	resultTTL = 5 * time.Minute
	// maxPendingResults caps parked results across all tenants
	maxPendingResults = 1024
)

type pendingResult struct {
	tenantID string
	record   arrow.Record
	created  time.Time
}

// FlightSQLServer serves the tenant SQL console over Arrow Flight SQL. The
// tenant comes from the x-scope-orgid gRPC metadata.
type FlightSQLServer struct {
	flightgen.UnimplementedFlightServiceServer
	service Service
	mem     memory.Allocator

	results     map[string]pendingResult
	resultsLock sync.Mutex

	ttl        time.Duration
	maxResults int
	now        func() time.Time
}

// NewFlightSQLServer creates a new FlightSQL server instance
func NewFlightSQLServer(svc Service) *FlightSQLServer {
	return &FlightSQLServer{
		service:    svc,
		mem:        memory.DefaultAllocator,
		results:    make(map[string]pendingResult),
		ttl:        resultTTL,
		maxResults: maxPendingResults,
		now:        time.Now,
	}
}

// Handshake echoes the client payload
func (s *FlightSQLServer) Handshake(stream flight.FlightService_HandshakeServer) error {
	for {
		req, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := stream.Send(&flight.HandshakeResponse{Payload: req.Payload}); err != nil {
			return err
		}
	}
}

// statementQuery extracts the SQL text of a CommandStatementQuery descriptor
func statementQuery(desc *flight.FlightDescriptor) (string, error) {
	if desc.Type != flight.DescriptorCMD {
		return "", fmt.Errorf("unsupported flight descriptor type: %v", desc.Type)
	}
	msg := &anypb.Any{}
	if err := proto.Unmarshal(desc.Cmd, msg); err != nil {
		return "", fmt.Errorf("failed to unmarshal command: %w", err)
	}
	if msg.TypeUrl != statementQueryType {
		return "", fmt.Errorf("unsupported command %s", msg.TypeUrl)
	}
	var cmd flightgen.CommandStatementQuery
	if err := msg.UnmarshalTo(&cmd); err != nil {
		return "", fmt.Errorf("failed to unmarshal statement: %w", err)
	}
	return strings.TrimSpace(cmd.Query), nil
}

// GetFlightInfo runs the statement and parks the result until DoGet
func (s *FlightSQLServer) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	tenantID, ctx, err := user.ExtractFromGRPCRequest(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "missing tenant id")
	}
	ctx = core.WithDefaultLogger(ctx, uuid.NewString())

	query, err := statementQuery(desc)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	core.Debugf(ctx, "executing flight sql statement for tenant %s: %s", tenantID, query)

	res, err := s.service.Execute(ctx, tenantID, query)
	if err != nil {
		core.Errorf(ctx, "flight sql statement failed: %v", err)
		return nil, status.Errorf(codes.InvalidArgument, "failed to execute query: %v", err)
	}

	record, err := convertResultToArrow(s.mem, res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to convert results to Arrow format: %v", err)
	}

	ticketID := uuid.NewString()
	if err := s.park(ticketID, pendingResult{tenantID: tenantID, record: record}); err != nil {
		record.Release()
		return nil, err
	}

	return &flight.FlightInfo{
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{{Ticket: &flight.Ticket{Ticket: []byte(ticketID)}}},
		TotalRecords:     record.NumRows(),
		TotalBytes:       -1,
		Schema:           flight.SerializeSchema(record.Schema(), s.mem),
	}, nil
}

// park stores a result until its DoGet. Expired results are released first;
// when the cap is still reached the request is refused.
func (s *FlightSQLServer) park(ticketID string, p pendingResult) error {
	s.resultsLock.Lock()
	defer s.resultsLock.Unlock()

	now := s.now()
	for id, old := range s.results {
		if now.Sub(old.created) > s.ttl {
			old.record.Release()
			delete(s.results, id)
		}
	}
	if len(s.results) >= s.maxResults {
		return status.Error(codes.ResourceExhausted, "too many results waiting to be fetched")
	}
	p.created = now
	s.results[ticketID] = p
	return nil
}

// pending returns the number of parked results
func (s *FlightSQLServer) pending() int {
	s.resultsLock.Lock()
	defer s.resultsLock.Unlock()
	return len(s.results)
}

// DoGet streams a parked result once; tickets only work for their tenant
func (s *FlightSQLServer) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	tenantID, _, err := user.ExtractFromGRPCRequest(stream.Context())
	if err != nil {
		return status.Error(codes.Unauthenticated, "missing tenant id")
	}

	id := string(ticket.Ticket)
	s.resultsLock.Lock()
	pending, ok := s.results[id]
	if ok && pending.tenantID == tenantID {
		delete(s.results, id)
	}
	s.resultsLock.Unlock()
	if !ok || pending.tenantID != tenantID {
		return status.Errorf(codes.NotFound, "no results found for ticket: %s", id)
	}
	defer pending.record.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(pending.record.Schema()))
	if err := writer.Write(pending.record); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return writer.Close()
}

// Close releases results that were never fetched
func (s *FlightSQLServer) Close() {
	s.resultsLock.Lock()
	defer s.resultsLock.Unlock()
	for id, p := range s.results {
		p.record.Release()
		delete(s.results, id)
	}
}

// arrowType picks the column type from the first non-null value
func arrowType(column string, rows []map[string]any) arrow.DataType {
	for _, row := range rows {
		switch row[column].(type) {
		case nil:
			continue
		case int8, int16, int32, int64, int, uint8, uint16, uint32:
			return arrow.PrimitiveTypes.Int64
		case float32, float64:
			return arrow.PrimitiveTypes.Float64
		case bool:
			return arrow.FixedWidthTypes.Boolean
		case time.Time:
			return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
		default:
			return arrow.BinaryTypes.String
		}
	}
	return arrow.BinaryTypes.String
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// convertResultToArrow converts a query result to a single record batch,
// keeping the column order of the result.
func convertResultToArrow(mem memory.Allocator, res *core.QueryResult) (arrow.Record, error) {
	if res == nil {
		return nil, fmt.Errorf("no result to convert")
	}

	fields := make([]arrow.Field, len(res.Columns))
	for i, col := range res.Columns {
		fields[i] = arrow.Field{Name: col, Type: arrowType(col, res.Rows), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for i, field := range fields {
		for _, row := range res.Rows {
			val := row[field.Name]
			if val == nil {
				builder.Field(i).AppendNull()
				continue
			}
			switch b := builder.Field(i).(type) {
			case *array.Int64Builder:
				if n, ok := toInt64(val); ok {
					b.Append(n)
				} else {
					b.AppendNull()
				}
			case *array.Float64Builder:
				switch v := val.(type) {
				case float64:
					b.Append(v)
				case float32:
					b.Append(float64(v))
				default:
					b.AppendNull()
				}
			case *array.BooleanBuilder:
				if v, ok := val.(bool); ok {
					b.Append(v)
				} else {
					b.AppendNull()
				}
			case *array.TimestampBuilder:
				if v, ok := val.(time.Time); ok {
					b.Append(arrow.Timestamp(v.UTC().UnixMicro()))
				} else {
					b.AppendNull()
				}
			case *array.StringBuilder:
				b.Append(stringValue(val))
			}
		}
	}
	return builder.NewRecord(), nil
}

func stringValue(v any) string {
	switch x := jsonValue(v).(type) {
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// StartFlightSQLServer serves FlightSQL on port until ctx is done
func StartFlightSQLServer(ctx context.Context, port int, svc Service) error {
	server := NewFlightSQLServer(svc)
	defer server.Close()

	s := grpc.NewServer()
	flightgen.RegisterFlightServiceServer(s, server)
	reflection.Register(s)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	core.Infof(ctx, "FlightSQL server listening on port %d", port)
	return s.Serve(lis)
}
