// Package server implements the gRPC CatalogService
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/bookquery/internal/logger"
	"github.com/nainya/bookquery/internal/metrics"
	"github.com/nainya/bookquery/pkg/catalog"
	"github.com/nainya/bookquery/pkg/store"
)

// Version is reported by Health.
const Version = "1.0.0"

var errCountUnsupported = errors.New("server: store cannot count documents")

// Config wires a Server.
type Config struct {
	Catalog      *catalog.Catalog
	Store        store.DocumentStore
	MaxDocuments int              // 0 means unlimited
	Metrics      *metrics.Metrics // Optional; enables store instrumentation
	Logger       *logger.Logger   // Optional
}

// Server implements CatalogServiceServer
type Server struct {
	catalog *catalog.Catalog
	store   store.DocumentStore
	maxDocs int
	metrics *metrics.Metrics
	log     *logger.Logger

	startTime time.Time
	mu        sync.Mutex
	opCounts  map[string]int64
}

var _ CatalogServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("server: catalog is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.MaxDocuments < 0 {
		return nil, fmt.Errorf("server: max documents must be non-negative, got %d", cfg.MaxDocuments)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	st := cfg.Store
	if cfg.Metrics != nil {
		st = NewInstrumentedStore(st, cfg.Metrics, log)
		cfg.Metrics.SetCatalogSize(cfg.Catalog.Len())
	}

	return &Server{
		catalog:   cfg.Catalog,
		store:     st,
		maxDocs:   cfg.MaxDocuments,
		metrics:   cfg.Metrics,
		log:       log,
		startTime: time.Now(),
		opCounts:  make(map[string]int64),
	}, nil
}

func (s *Server) count(op string) {
	s.mu.Lock()
	s.opCounts[op]++
	s.mu.Unlock()
}

// ========== Catalog Operations ==========

func (s *Server) ListQueries(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.count("ListQueries")

	entries := s.catalog.Entries()
	queries := make([]interface{}, len(entries))
	for i, e := range entries {
		queries[i] = map[string]interface{}{
			"name":        e.Name,
			"kind":        e.Kind.String(),
			"description": e.Description,
		}
	}
	return newStruct(map[string]interface{}{"queries": queries})
}

func (s *Server) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Execute")

	name, err := queryName(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.catalog.Execute(ctx, name, s.store)
	kind := ""
	if def, ok := s.catalog.Lookup(name); ok {
		kind = def.Kind().String()
	}
	s.log.LogQueryExecution(name, kind, time.Since(start), err)
	s.recordQuery(name, err)
	if err != nil {
		return nil, toStatus(err)
	}

	out := map[string]interface{}{
		"name": name,
		"kind": res.Kind.String(),
	}
	switch {
	case res.Cursor != nil:
		docs, truncated, err := drain(res.Cursor, s.maxDocs)
		if err != nil {
			return nil, toStatus(err)
		}
		out["documents"] = docs
		out["count"] = len(docs)
		out["truncated"] = truncated
	case res.Index.Name != "":
		out["index"] = res.Index.Name
		out["created"] = res.Index.Created
	default:
		out["count"] = res.Count
	}
	return newStruct(out)
}

func (s *Server) Explain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Explain")

	name, err := queryName(req)
	if err != nil {
		return nil, err
	}
	report, err := s.catalog.Explain(ctx, name, s.store)
	if err != nil {
		return nil, toStatus(err)
	}

	plan := make([]interface{}, len(report.Plan))
	for i, p := range report.Plan {
		plan[i] = p
	}
	return newStruct(map[string]interface{}{
		"name":          name,
		"collection":    report.Collection,
		"statement":     report.Statement,
		"plan":          plan,
		"stage":         report.Stage,
		"index":         report.Index,
		"docs_returned": report.DocsReturned,
		"duration_ms":   float64(report.Duration.Microseconds()) / 1000,
	})
}

// ========== Health & Status ==========

func (s *Server) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return newStruct(map[string]interface{}{
		"healthy":        true,
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	ops := make(map[string]interface{}, len(s.opCounts))
	for op, n := range s.opCounts {
		ops[op] = n
	}
	s.mu.Unlock()

	out := map[string]interface{}{
		"queries":          s.catalog.Len(),
		"operation_counts": ops,
	}

	counter, ok := s.store.(interface {
		Count(context.Context) (int64, error)
	})
	if ok {
		n, err := counter.Count(ctx)
		switch {
		case err == nil:
			out["documents"] = n
		case !errors.Is(err, errCountUnsupported):
			return nil, status.Errorf(codes.Internal, "count documents: %v", err)
		}
	}
	return newStruct(out)
}

func (s *Server) recordQuery(name string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = status.Code(toStatus(err)).String()
	}
	s.metrics.RecordQueryExecution(name, result)
}

func queryName(req *structpb.Struct) (string, error) {
	name := req.GetFields()["name"].GetStringValue()
	if name == "" {
		return "", status.Error(codes.InvalidArgument, "name is required")
	}
	return name, nil
}

// drain reads up to limit documents (0 means all) and closes cur.
func drain(cur store.Cursor, limit int) ([]interface{}, bool, error) {
	defer cur.Close()

	var docs []interface{}
	for cur.Next() {
		if limit > 0 && len(docs) == limit {
			return docs, true, nil
		}
		var doc map[string]interface{}
		if err := cur.Decode(&doc); err != nil {
			return nil, false, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}
	if docs == nil {
		docs = []interface{}{}
	}
	return docs, false, nil
}

// toStatus maps catalog and context errors to gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, catalog.ErrInvalidDefinition):
		code = codes.InvalidArgument
	case errors.Is(err, catalog.ErrNotExplainable):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

func newStruct(m map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}
