// Package grpcserver exposes the read side of the timeline service over
// gRPC together with the standard health service.
package grpcserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chronozoom/internal/timeline"
	"chronozoom/pkg/models"
)

const ServiceName = "chronozoom.v1.TimelineService"

// Querier is the part of the query engine the service serves.
type Querier interface {
	GetTimelines(ctx context.Context, acting *models.User, ref timeline.CollectionRef, q timeline.TimelineQuery) (*models.Timeline, error)
	Search(ctx context.Context, ref timeline.CollectionRef, term string) ([]models.SearchResult, error)
	GetTours(ctx context.Context, ref timeline.CollectionRef) ([]models.Tour, error)
}

type CollectionName struct {
	SuperCollection string `json:"super_collection"`
	Collection      string `json:"collection"`
}

func (n CollectionName) ref() (timeline.CollectionRef, error) {
	if strings.TrimSpace(n.SuperCollection) == "" || strings.TrimSpace(n.Collection) == "" {
		return timeline.CollectionRef{}, status.Error(codes.InvalidArgument, "super_collection and collection required")
	}
	return timeline.CollectionRef{SuperCollection: n.SuperCollection, Collection: n.Collection}, nil
}

type GetTimelinesRequest struct {
	CollectionName
	FromYear       *float64   `json:"from_year,omitempty"`
	ToYear         *float64   `json:"to_year,omitempty"`
	MinSpan        *float64   `json:"min_span,omitempty"`
	CommonAncestor *uuid.UUID `json:"common_ancestor,omitempty"`
	MaxElements    *int       `json:"max_elements,omitempty"`
}

type GetTimelinesResponse struct {
	Timeline *models.Timeline `json:"timeline"`
}

type SearchRequest struct {
	CollectionName
	Term string `json:"term"`
}

type SearchResponse struct {
	Results []models.SearchResult `json:"results"`
}

type GetToursRequest struct {
	CollectionName
}

type GetToursResponse struct {
	Tours []models.Tour `json:"tours"`
}

// TimelineService is implemented by Server.
type TimelineService interface {
	GetTimelines(context.Context, *GetTimelinesRequest) (*GetTimelinesResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	GetTours(context.Context, *GetToursRequest) (*GetToursResponse, error)
}

// Server answers anonymously: owners get the same cached view as everyone
// else.
type Server struct {
	Query Querier
}

func NewServer(q Querier) *Server {
	return &Server{Query: q}
}

func (s *Server) GetTimelines(ctx context.Context, req *GetTimelinesRequest) (*GetTimelinesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	ref, err := req.ref()
	if err != nil {
		return nil, err
	}
	root, err := s.Query.GetTimelines(ctx, nil, ref, timeline.TimelineQuery{
		FromYear:       req.FromYear,
		ToYear:         req.ToYear,
		MinSpan:        req.MinSpan,
		CommonAncestor: req.CommonAncestor,
		MaxElements:    req.MaxElements,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetTimelinesResponse{Timeline: root}, nil
}

func (s *Server) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	ref, err := req.ref()
	if err != nil {
		return nil, err
	}
	results, err := s.Query.Search(ctx, ref, req.Term)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SearchResponse{Results: results}, nil
}

func (s *Server) GetTours(ctx context.Context, req *GetToursRequest) (*GetToursResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	ref, err := req.ref()
	if err != nil {
		return nil, err
	}
	tours, err := s.Query.GetTours(ctx, ref)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetToursResponse{Tours: tours}, nil
}

func toStatus(err error) error {
	kind := timeline.KindOf(err)
	switch kind.HTTPStatus() {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return status.Error(codes.InvalidArgument, err.Error())
	case http.StatusUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case http.StatusForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case http.StatusConflict:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func unaryHandler[Req any, Resp any](method string, call func(TimelineService, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TimelineService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(TimelineService), ctx, req.(*Req))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TimelineService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTimelines", Handler: unaryHandler("GetTimelines", TimelineService.GetTimelines)},
		{MethodName: "Search", Handler: unaryHandler("Search", TimelineService.Search)},
		{MethodName: "GetTours", Handler: unaryHandler("GetTours", TimelineService.GetTours)},
	},
	Metadata: "chronozoom/timeline.json",
}

// Register adds the timeline service to g.
func Register(g *grpc.Server, s TimelineService) {
	g.RegisterService(&serviceDesc, s)
}

// Client calls a remote TimelineService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) GetTimelines(ctx context.Context, in *GetTimelinesRequest) (*GetTimelinesResponse, error) {
	out := new(GetTimelinesResponse)
	if err := c.invoke(ctx, "GetTimelines", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, in *SearchRequest) (*SearchResponse, error) {
	out := new(SearchResponse)
	if err := c.invoke(ctx, "Search", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTours(ctx context.Context, in *GetToursRequest) (*GetToursResponse, error) {
	out := new(GetToursResponse)
	if err := c.invoke(ctx, "GetTours", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
