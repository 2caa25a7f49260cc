package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"spacecore/internal/projection"
	"spacecore/pkg/domain"
)

// Service exposes the transactional operations of the space record system.
// Every successful mutation rewrites the derived view artifacts; a failed
// artifact write is logged and does not undo the mutation.
type Service struct {
	store       domain.PersistentStore
	projections *projection.Writer
	logger      *zap.Logger
	metrics     MetricsRecorder
	tracer      Tracer
	clock       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder to every operation.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer to every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithProjectionWriter sets the writer that regenerates derived views after
// each mutation. Without one, mutations skip regeneration.
func WithProjectionWriter(w *projection.Writer) Option {
	return func(s *Service) { s.projections = w }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: zap.NewNop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// default rules registered. Intended for tests.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(newMemoryStore(DefaultRulesEngine()), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// CreateSpace persists a new space record. The id is assigned by the store
// (highest existing id plus one) and provenance fields default to the clock
// when unset.
func (s *Service) CreateSpace(ctx context.Context, space Space) (Space, Result, error) {
	var created Space
	res, err := s.instrument(ctx, "create_space", func(ctx context.Context) (Result, error) {
		if space.CreatedAt == "" {
			space.CreatedAt = domain.FormatTimestamp(s.clock())
		}
		if space.Status == "" {
			space.Status = domain.DeriveStatus(space)
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateSpace(space)
			return err
		})
	})
	return created, res, err
}

// AppendUpdate appends an event to a space's log.
func (s *Service) AppendUpdate(ctx context.Context, id int, event UpdateEvent, appendToImages bool) (Space, Result, error) {
	var updated Space
	res, err := s.instrument(ctx, "append_update", func(ctx context.Context) (Result, error) {
		if event.CreatedAt == "" {
			event.CreatedAt = domain.FormatTimestamp(s.clock())
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.AppendUpdate(id, event, appendToImages)
			return err
		})
	})
	return updated, res, err
}

// RevertUpdate pops the most recent event from a space's log.
func (s *Service) RevertUpdate(ctx context.Context, id int) (Space, Result, error) {
	var updated Space
	res, err := s.instrument(ctx, "revert_update", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.RevertUpdate(id)
			return err
		})
	})
	return updated, res, err
}

// TakeRequest describes a mark-taken operation. A ReplacementImage becomes
// the new representative; the space is published only when Publish is also
// set, keeping taken as the base state. Instructions and instruction images
// accumulate on the artist's assignment without entering the space's image
// list.
type TakeRequest struct {
	Artist            string
	Note              string
	At                string // event timestamp, defaults to the service clock
	ReplacementImage  *ImageRef
	Publish           bool
	Instructions      string
	InstructionImages []ImageRef
}

// MarkTaken appends the taken event for a space. Instructions, when given,
// ride a second instruction-class event in the same transaction so the note
// and the instruction text land on separate assignment lists.
func (s *Service) MarkTaken(ctx context.Context, id int, req TakeRequest) (Space, Result, error) {
	status := StatusTaken
	event := UpdateEvent{
		Author:    req.Artist,
		Action:    ActionTaken,
		Status:    status,
		CreatedAt: req.At,
	}
	if req.Note != "" {
		note := req.Note
		event.Text = &note
	}
	appendToImages := false
	if req.ReplacementImage != nil {
		img := *req.ReplacementImage
		img.Role = domain.RolePrimary
		event.Images = append(event.Images, img)
		appendToImages = true
		if req.Publish {
			// The action stays taken so the artist assignment and the
			// taken_by mirror are still recorded; only the status flips.
			status = StatusPublished
			event.Status = status
		}
	}

	var instrEvent *UpdateEvent
	if req.Instructions != "" || len(req.InstructionImages) > 0 {
		ev := UpdateEvent{
			Author:    req.Artist,
			Action:    domain.ActionInstruction,
			Status:    status,
			CreatedAt: req.At,
		}
		if req.Instructions != "" {
			text := req.Instructions
			ev.Text = &text
		}
		for _, img := range req.InstructionImages {
			img.Role = domain.RoleInstruction
			ev.Images = append(ev.Images, img)
		}
		instrEvent = &ev
	}

	var updated Space
	res, err := s.instrument(ctx, "mark_taken", func(ctx context.Context) (Result, error) {
		now := domain.FormatTimestamp(s.clock())
		if event.CreatedAt == "" {
			event.CreatedAt = now
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.AppendUpdate(id, event, appendToImages)
			if err != nil {
				return err
			}
			if instrEvent != nil {
				if instrEvent.CreatedAt == "" {
					instrEvent.CreatedAt = now
				}
				updated, err = tx.AppendUpdate(id, *instrEvent, false)
			}
			return err
		})
	})
	return updated, res, err
}

// GetSpace returns the space with the given id.
func (s *Service) GetSpace(id int) (Space, bool) {
	return s.store.GetSpace(id)
}

// ListSpaces returns all spaces ordered by id.
func (s *Service) ListSpaces() []Space {
	return s.store.ListSpaces()
}

// RegenerateProjections rewrites both derived views from current state.
func (s *Service) RegenerateProjections(ctx context.Context) error {
	if s.projections == nil {
		return nil
	}
	_, err := s.instrument(ctx, "regenerate_projections", func(context.Context) (Result, error) {
		return Result{}, s.projections.Regenerate(s.store.ListSpaces())
	})
	return err
}

// instrument wraps an operation with tracing, metrics, warning logs for
// non-blocking violations, and post-mutation projection regeneration.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) (Result, error)) (Result, error) {
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	started := s.clock()
	res, err := fn(ctx)
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, s.clock().Sub(started))
	}
	if span != nil {
		span.End(err)
	}
	if err != nil {
		s.logger.Warn("operation failed", zap.String("operation", operation), zap.Error(err))
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation",
			zap.String("operation", operation),
			zap.String("rule", v.Rule),
			zap.String("severity", string(v.Severity)),
			zap.Int("space_id", v.SpaceID),
			zap.String("message", v.Message))
	}
	if s.projections != nil && operation != "regenerate_projections" {
		if werr := s.projections.Regenerate(s.store.ListSpaces()); werr != nil {
			s.logger.Warn("projection regeneration failed",
				zap.String("operation", operation), zap.Error(werr))
		}
	}
	return res, nil
}
