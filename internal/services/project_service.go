// Package services orchestrates ledger writes across the record store, the
// blob store and the event bus.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/auth"
	"ledger/internal/blob"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

// ErrInvalidInput wraps every validation failure of a project write.
var ErrInvalidInput = errors.New("invalid project input")

// ProjectService is the only writer of projects.
type ProjectService struct {
	store     store.ProjectStore
	blobs     blob.Store
	publisher amqp.Publisher
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
	newID     func() string
}

// NewProjectService wires the collaborators. blobs and publisher may be nil:
// attachments then stay inline and no events are sent.
func NewProjectService(s store.ProjectStore, blobs blob.Store, publisher amqp.Publisher, logger *log.Logger) *ProjectService {
	l := log.OrDefault(logger, log.ComponentProject)
	return &ProjectService{
		store:     s,
		blobs:     blobs,
		publisher: publisher,
		logger:    l,
		events:    log.NewStructuredLogger(l),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock replaces the time source.
func (s *ProjectService) WithClock(now func() time.Time) *ProjectService {
	s.now = now
	return s
}

// WithIDs replaces the id generator.
func (s *ProjectService) WithIDs(newID func() string) *ProjectService {
	s.newID = newID
	return s
}

func (s *ProjectService) authorize(ctx context.Context, session *core.Session, action auth.Action) error {
	if err := auth.Require(session, action); err != nil {
		username, role := "", ""
		if session != nil {
			username, role = session.Username, string(session.Role)
		}
		s.events.LogAccessDenied(ctx, username, role, string(action))
		return err
	}
	return nil
}

// Create validates and stores a new project with its balance derived.
func (s *ProjectService) Create(ctx context.Context, session *core.Session, in core.ProjectInput) (core.Project, error) {
	if err := s.authorize(ctx, session, auth.ActionCreateProject); err != nil {
		return core.Project{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Project{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	p := core.NewProject(in, s.newID(), s.now())
	if err := s.offload(ctx, &p); err != nil {
		return core.Project{}, err
	}
	if err := s.store.UpsertProject(ctx, p); err != nil {
		return core.Project{}, fmt.Errorf("save project: %w", err)
	}

	s.events.LogProjectSaved(ctx, log.OpCreate, p.ID, p.Name, p.BalanceAmount.Cents, session.Username)
	s.publish(ctx, amqp.EventProjectSaved, p.ID)
	return p, nil
}

// Update replaces every editable field of project id. The balance is
// re-derived whatever the stored value was.
func (s *ProjectService) Update(ctx context.Context, session *core.Session, id string, in core.ProjectInput) (core.Project, error) {
	if err := s.authorize(ctx, session, auth.ActionEditProject); err != nil {
		return core.Project{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Project{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return core.Project{}, err
	}
	p.Apply(in)
	if err := s.offload(ctx, &p); err != nil {
		return core.Project{}, err
	}
	if err := s.store.UpsertProject(ctx, p); err != nil {
		return core.Project{}, fmt.Errorf("save project: %w", err)
	}

	s.events.LogProjectSaved(ctx, log.OpUpdate, p.ID, p.Name, p.BalanceAmount.Cents, session.Username)
	s.publish(ctx, amqp.EventProjectSaved, p.ID)
	return p, nil
}

// Delete removes project id and its offloaded attachments. Deleting a
// missing project succeeds without side effects.
func (s *ProjectService) Delete(ctx context.Context, session *core.Session, id string) error {
	if err := s.authorize(ctx, session, auth.ActionDeleteProject); err != nil {
		return err
	}

	p, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.dropBlobs(ctx, p)

	s.logger.InfoContext(ctx, "Project deleted",
		log.FieldProjectID, id,
		log.FieldProjectName, p.Name,
		log.FieldUsername, session.Username)
	s.publish(ctx, amqp.EventProjectDeleted, id)
	return nil
}

func (s *ProjectService) List(ctx context.Context) ([]core.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *ProjectService) Get(ctx context.Context, id string) (core.Project, error) {
	return s.store.GetProject(ctx, id)
}

// History aggregates every project at now.
func (s *ProjectService) History(ctx context.Context, now time.Time) (core.History, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return core.History{}, err
	}
	return core.Aggregate(projects, now), nil
}

// Upcoming lists pending projects, latest start first.
func (s *ProjectService) Upcoming(ctx context.Context, now time.Time) ([]core.Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	pending := core.FilterByStatus(projects, core.StatusPending, now)
	core.SortByStartDesc(pending)
	return pending, nil
}

// Completed lists projects whose end date has passed.
func (s *ProjectService) Completed(ctx context.Context, now time.Time) ([]core.Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterByStatus(projects, core.StatusCompleted, now), nil
}

// Attachment returns the file in slot with its payload loaded.
func (s *ProjectService) Attachment(ctx context.Context, id string, slot core.AttachmentSlot) (*core.Attachment, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	a := p.Attachment(slot)
	if a == nil {
		return nil, fmt.Errorf("%s of project %s: %w", slot, id, store.ErrNotFound)
	}
	full, err := blob.Hydrate(ctx, s.blobs, a)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("%s of project %s: %w", slot, id, store.ErrNotFound)
	}
	return full, err
}

func (s *ProjectService) offload(ctx context.Context, p *core.Project) error {
	for _, slot := range core.Slots() {
		a := p.Attachment(slot)
		if a == nil || len(a.Data) == 0 || s.blobs == nil {
			continue
		}
		// Copy so the caller's input is not mutated.
		cp := *a
		if err := blob.Offload(ctx, s.blobs, p.ID, slot, &cp); err != nil {
			return fmt.Errorf("offload %s: %w", slot, err)
		}
		p.SetAttachment(slot, &cp)
		s.logger.DebugContext(ctx, "Attachment offloaded",
			log.FieldProjectID, p.ID,
			log.FieldSlot, slot,
			log.FieldBlobKey, cp.Key)
	}
	return nil
}

func (s *ProjectService) dropBlobs(ctx context.Context, p core.Project) {
	if s.blobs == nil {
		return
	}
	for _, slot := range core.Slots() {
		a := p.Attachment(slot)
		if a == nil || a.Key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, a.Key); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete attachment blob",
				log.FieldProjectID, p.ID,
				log.FieldBlobKey, a.Key,
				log.FieldError, err)
		}
	}
}

// publish is best effort: the write has already succeeded.
func (s *ProjectService) publish(ctx context.Context, t amqp.EventType, id string) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Event bus not configured, skipping event", log.FieldEventType, t)
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewProjectEvent(t, id, s.now())); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish project event",
			log.FieldEventType, t,
			log.FieldProjectID, id,
			log.FieldError, err)
	}
}
