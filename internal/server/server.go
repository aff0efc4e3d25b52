// Package server exposes the traversal service over Arrow Flight.
//
// Control operations are Flight actions with JSON bodies. DoGet takes the same
// JSON traversal request as a ticket and streams the visited set as a single
// Arrow record.
package server

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/limiter"
	"github.com/23skdu/rowgraph/internal/metrics"
	"github.com/23skdu/rowgraph/internal/pool"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/service"
)

// Action types understood by DoAction.
const (
	ActionTraverse          = "traverse"
	ActionPlanCacheStats    = "plan-cache-stats"
	ActionStatistics        = "statistics"
	ActionRefreshStatistics = "refresh-statistics"
)

var resultBuffers = pool.NewBytePool("flight_results", 0)

var actionTypes = []*flight.ActionType{
	{Type: ActionTraverse, Description: "run a traversal; body and result are JSON"},
	{Type: ActionPlanCacheStats, Description: "plan cache hit, miss and eviction counters"},
	{Type: ActionStatistics, Description: "published statistics snapshot for a relationship"},
	{Type: ActionRefreshStatistics, Description: "collect and publish a new statistics snapshot"},
}

// VisitSchema is the schema of records streamed by DoGet.
var VisitSchema = arrow.NewSchema([]arrow.Field{
	{Name: "node_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "ordinal", Type: arrow.PrimitiveTypes.Int32},
	{Name: "on_path", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// Server implements the Flight service on top of a service.Service.
type Server struct {
	flight.BaseFlightServer

	svc    *service.Service
	alloc  memory.Allocator
	logger zerolog.Logger
}

// New creates a Flight server. A nil allocator uses the Go allocator.
func New(svc *service.Service, alloc memory.Allocator, logger zerolog.Logger) *Server {
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}
	return &Server{
		svc:    svc,
		alloc:  alloc,
		logger: logger.With().Str("component", "flight").Logger(),
	}
}

// NewGRPCServer builds a gRPC server with the rate limiter interceptors
// installed and srv registered as its Flight service.
func NewGRPCServer(srv *Server, lim *limiter.RateLimiter, opts ...grpc.ServerOption) *grpc.Server {
	if lim != nil && lim.Enabled() {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(lim.UnaryInterceptor()),
			grpc.ChainStreamInterceptor(lim.StreamInterceptor()),
		)
	}
	g := grpc.NewServer(opts...)
	flight.RegisterFlightServiceServer(g, srv)
	return g
}

// TraverseRequest is the JSON form of a traversal request. Columns, when set,
// asks for the result rows to be projected.
type TraverseRequest struct {
	Start        core.NodeID       `json:"start"`
	Goal         *core.NodeID      `json:"goal,omitempty"`
	Relationship core.Relationship `json:"relationship"`
	MaxDepth     int               `json:"max_depth"`
	Strategy     core.Strategy     `json:"strategy"`
	Heuristic    core.Heuristic    `json:"heuristic"`
	TimeoutMS    int64             `json:"timeout_ms,omitempty"`
	Columns      []string          `json:"columns,omitempty"`
}

func (r *TraverseRequest) request() *core.TraversalRequest {
	return &core.TraversalRequest{
		Start:        r.Start,
		Goal:         r.Goal,
		Relationship: r.Relationship,
		MaxDepth:     r.MaxDepth,
		Strategy:     r.Strategy,
		Heuristic:    r.Heuristic,
		Timeout:      time.Duration(r.TimeoutMS) * time.Millisecond,
	}
}

// TraverseResponse is the JSON form of a traversal result. Cost is null when
// the goal is unreachable.
type TraverseResponse struct {
	Strategy      core.Strategy   `json:"strategy"`
	Heuristic     core.Heuristic  `json:"heuristic"`
	Visited       []core.NodeID   `json:"visited"`
	GoalRequested bool            `json:"goal_requested"`
	Found         bool            `json:"found"`
	Path          []core.NodeID   `json:"path"`
	Cost          *float64        `json:"cost"`
	DepthReached  int             `json:"depth_reached"`
	Truncated     bool            `json:"truncated"`
	PlanSource    core.PlanSource `json:"plan_source"`
	Rows          []rowsource.Row `json:"rows,omitempty"`
}

// NewTraverseResponse converts a result to its JSON form.
func NewTraverseResponse(res *core.TraversalResult) *TraverseResponse {
	out := &TraverseResponse{
		Strategy:      res.Strategy,
		Heuristic:     res.Heuristic,
		Visited:       res.Visited,
		GoalRequested: res.GoalRequested,
		Found:         res.Found,
		Path:          res.Path,
		DepthReached:  res.DepthReached,
		Truncated:     res.Truncated,
		PlanSource:    res.PlanSource,
	}
	if !math.IsInf(res.Cost, 0) && !math.IsNaN(res.Cost) {
		c := res.Cost
		out.Cost = &c
	}
	return out
}

type relationshipRequest struct {
	Relationship core.Relationship `json:"relationship"`
}

func observe(method string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = status.Code(err).String()
	}
	metrics.FlightOperationsTotal.WithLabelValues(method, result).Inc()
	metrics.FlightDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ListActions advertises the supported action types.
func (s *Server) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	for _, at := range actionTypes {
		if err := stream.Send(at); err != nil {
			return err
		}
	}
	return nil
}

// DoAction dispatches control operations, converting domain errors to gRPC status codes.
func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) (err error) {
	if action == nil {
		return status.Error(codes.InvalidArgument, "action is required")
	}
	method := "DoAction/unknown"
	for _, at := range actionTypes {
		if at.Type == action.Type {
			method = "DoAction/" + at.Type
		}
	}
	defer func(start time.Time) { observe(method, start, err) }(time.Now())

	ctx := stream.Context()
	var body any
	switch action.Type {
	case ActionTraverse:
		body, err = s.traverse(ctx, action.Body)
	case ActionPlanCacheStats:
		body = s.svc.CacheStats()
	case ActionStatistics, ActionRefreshStatistics:
		var req relationshipRequest
		if err := json.Unmarshal(action.Body, &req); err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid json body: %v", err)
		}
		if action.Type == ActionStatistics {
			body, err = s.svc.Statistics(ctx, req.Relationship)
		} else {
			body, err = s.svc.RefreshStatistics(ctx, req.Relationship)
		}
	default:
		return status.Errorf(codes.Unimplemented, "unknown action: %s", action.Type)
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("action", action.Type).Msg("action failed")
		return rgerrors.ToGRPCStatus(err)
	}

	out, release, err := resultBuffers.EncodeJSON(body)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to serialize %s result: %v", action.Type, err)
	}
	// Send marshals the message before returning, so the buffer can be reused afterwards.
	defer release()
	return stream.Send(&flight.Result{Body: out})
}

func (s *Server) traverse(ctx context.Context, body []byte) (*TraverseResponse, error) {
	var req TraverseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid json body: %v", err)
	}
	res, err := s.svc.Submit(ctx, req.request())
	if err != nil {
		return nil, err
	}
	out := NewTraverseResponse(res)
	if len(req.Columns) > 0 {
		if out.Rows, err = s.svc.Project(ctx, req.Relationship, res, req.Columns); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DoGet runs the traversal described by the JSON ticket and streams the
// visited nodes in visit order.
func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) (err error) {
	defer func(start time.Time) { observe("DoGet", start, err) }(time.Now())

	if tkt == nil || len(tkt.Ticket) == 0 {
		return status.Error(codes.InvalidArgument, "ticket is required")
	}
	var req TraverseRequest
	if err := json.Unmarshal(tkt.Ticket, &req); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid ticket format: %v", err)
	}
	res, err := s.svc.Submit(stream.Context(), req.request())
	if err != nil {
		return rgerrors.ToGRPCStatus(err)
	}

	rec := s.visitRecord(res)
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(VisitSchema), ipc.WithAllocator(s.alloc))
	defer w.Close()
	if err := w.Write(rec); err != nil {
		return status.Errorf(codes.Internal, "failed to write record: %v", err)
	}
	return nil
}

func (s *Server) visitRecord(res *core.TraversalResult) arrow.Record {
	onPath := make(map[core.NodeID]bool, len(res.Path))
	for _, id := range res.Path {
		onPath[id] = true
	}

	b := array.NewRecordBuilder(s.alloc, VisitSchema)
	defer b.Release()
	ids := b.Field(0).(*array.Int64Builder)
	ordinals := b.Field(1).(*array.Int32Builder)
	flags := b.Field(2).(*array.BooleanBuilder)
	ids.Reserve(len(res.Visited))
	ordinals.Reserve(len(res.Visited))
	flags.Reserve(len(res.Visited))
	for i, id := range res.Visited {
		ids.Append(int64(id))
		ordinals.Append(int32(i))
		flags.Append(onPath[id])
	}
	return b.NewRecord()
}
