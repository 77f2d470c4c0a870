package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"weakapi/internal/model"
)

// NoteRepository defines note persistence operations.
type NoteRepository interface {
	Create(ctx context.Context, note *model.Note) error
	// FindByID loads a note with its owner, without any ownership filter.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Note, error)
	FindByIDAndOwner(ctx context.Context, id, userID uuid.UUID) (*model.Note, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Note, error)
	Delete(ctx context.Context, note *model.Note) error
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo NoteRepository) error) error
}

type noteRepository struct {
	db *gorm.DB
}

// NewNoteRepository builds a GORM-backed repository.
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) Create(ctx context.Context, note *model.Note) error {
	return r.db.WithContext(ctx).Omit("User").Create(note).Error
}

func (r *noteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	var note model.Note
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *noteRepository) FindByIDAndOwner(ctx context.Context, id, userID uuid.UUID) (*model.Note, error) {
	var note model.Note
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *noteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Note, error) {
	var notes []model.Note
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_date, id").
		Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *noteRepository) Delete(ctx context.Context, note *model.Note) error {
	res := r.db.WithContext(ctx).Where("id = ?", note.ID).Delete(&model.Note{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// WithTransaction executes a function within a database transaction.
func (r *noteRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo NoteRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &noteRepository{db: tx})
	})
}
