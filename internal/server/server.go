// Package server exposes documents and named queries over HTTP and gRPC.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/events"
	"github.com/alfredjeanlab/docq/internal/idgen"
	"github.com/alfredjeanlab/docq/internal/pipeline"
	"github.com/alfredjeanlab/docq/internal/query"
	"github.com/alfredjeanlab/docq/internal/store"
)

// Options configures a Server. Zero values select defaults.
type Options struct {
	Publisher events.Publisher
	Resolver  *auth.Resolver
	Quota     Quota
	Limiter   *RateLimiter
	Metrics   *Metrics
	Logger    *slog.Logger

	OwnerField string
	Mode       query.Mode
	Ledger     pipeline.Ledger
	IDs        *idgen.Generator
}

// Server implements the docq operations on top of a store. The transport
// handlers in http.go and grpc.go are thin adapters around it.
type Server struct {
	store     store.Store
	publisher events.Publisher
	resolver  *auth.Resolver
	quota     Quota
	limiter   *RateLimiter
	metrics   *Metrics
	logger    *slog.Logger
	sseHub    *sseHub

	compiler   *query.Compiler
	assembler  *pipeline.Assembler
	ids        *idgen.Generator
	ownerField string
	mode       query.Mode

	now func() time.Time
}

// New returns a Server backed by s.
func New(s store.Store, opts Options) *Server {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Resolver == nil {
		opts.Resolver = auth.NewResolver("", "")
	}
	if opts.Quota == nil {
		opts.Quota = Unlimited{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OwnerField == "" {
		opts.OwnerField = query.DefaultOwnerField
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New("", idgen.DefaultLength)
	}
	opts.Ledger.OwnerField = opts.OwnerField

	return &Server{
		store:      s,
		publisher:  opts.Publisher,
		resolver:   opts.Resolver,
		quota:      opts.Quota,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		sseHub:     newSSEHub(sseRingBufferSize),
		compiler:   query.NewCompiler(opts.OwnerField, opts.Mode, opts.Logger),
		assembler:  pipeline.NewAssembler(opts.Ledger),
		ids:        opts.IDs,
		ownerField: opts.OwnerField,
		mode:       opts.Mode,
		now:        time.Now,
	}
}

// publish sends an event to NATS and to SSE clients. owner limits SSE
// delivery to that principal; an empty owner reaches every client.
// Failures are logged and never fail the request.
func (s *Server) publish(ctx context.Context, topic, owner string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	} else {
		s.metrics.EventsPublished.WithLabelValues(topic).Inc()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, owner, payload)
}
