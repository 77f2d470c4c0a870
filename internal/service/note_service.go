package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"weakapi/internal/auth"
	"weakapi/internal/config"
	apperrors "weakapi/internal/errors"
	"weakapi/internal/model"
	"weakapi/internal/render"
	"weakapi/internal/repository"
)

// NoteService handles note operations on behalf of an acting user.
type NoteService interface {
	Create(ctx context.Context, acting *model.User, title, description string) (*model.Note, error)
	// List returns the notes of requested when the policy allows the
	// override, otherwise those of acting.
	List(ctx context.Context, acting *model.User, requested *uuid.UUID) ([]model.Note, error)
	// View renders a note as an HTML page.
	View(ctx context.Context, acting *model.User, noteID uuid.UUID) (string, error)
	Delete(ctx context.Context, acting *model.User, noteID uuid.UUID) error
}

type noteService struct {
	notes    repository.NoteRepository
	renderer render.Renderer
	policy   config.Policy
	log      logrus.FieldLogger
}

// NewNoteService creates a new note service.
func NewNoteService(
	notes repository.NoteRepository,
	renderer render.Renderer,
	policy config.Policy,
	log logrus.FieldLogger,
) NoteService {
	return &noteService{
		notes:    notes,
		renderer: renderer,
		policy:   policy,
		log:      log,
	}
}

func (s *noteService) Create(ctx context.Context, acting *model.User, title, description string) (*model.Note, error) {
	note := &model.Note{
		Title:       title,
		Description: description,
		UserID:      acting.ID,
	}

	err := s.notes.WithTransaction(ctx, func(ctx context.Context, repo repository.NoteRepository) error {
		return repo.Create(ctx, note)
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", acting.ID).Error("create note failed")
		return nil, apperrors.Persistence(err)
	}
	return note, nil
}

func (s *noteService) List(ctx context.Context, acting *model.User, requested *uuid.UUID) ([]model.Note, error) {
	owner := auth.ResolveNotesOwner(acting, requested, s.policy.AllowNotesUserOverride)

	notes, err := s.notes.ListByUser(ctx, owner)
	if err != nil {
		s.log.WithError(err).WithField("owner_id", owner).Error("list notes failed")
		return nil, apperrors.Persistence(err)
	}
	if owner != acting.ID {
		s.log.WithFields(logrus.Fields{
			"user_id":  acting.ID,
			"owner_id": owner,
		}).Warn("listing notes of another user")
	}
	return notes, nil
}

func (s *noteService) View(ctx context.Context, acting *model.User, noteID uuid.UUID) (string, error) {
	note, err := s.notes.FindByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrNoteNotFound
		}
		return "", apperrors.Persistence(err)
	}

	if err := auth.AuthorizeNoteView(acting, note, note.User, s.policy.StrictNoteView); err != nil {
		return "", err
	}

	page, err := s.renderer.Render(note)
	if err != nil {
		s.log.WithError(err).WithField("note_id", noteID).Warn("render note failed")
		return "", err
	}
	return page, nil
}

// Delete only matches notes owned by acting, so a foreign note and a
// missing one are indistinguishable to the caller.
func (s *noteService) Delete(ctx context.Context, acting *model.User, noteID uuid.UUID) error {
	err := s.notes.WithTransaction(ctx, func(ctx context.Context, repo repository.NoteRepository) error {
		note, err := repo.FindByIDAndOwner(ctx, noteID, acting.ID)
		if err != nil {
			return err
		}
		return repo.Delete(ctx, note)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNoteNotFound
	}
	s.log.WithError(err).WithField("note_id", noteID).Error("delete note failed")
	return apperrors.Persistence(err)
}
