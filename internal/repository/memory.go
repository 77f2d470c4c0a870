package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"weakapi/internal/model"
)

// MemoryStore keeps users and notes in process memory. It enforces the same
// constraints as the relational schema: unique usernames, notes must
// reference an existing user, and deleting a user deletes its notes.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
	notes map[uuid.UUID]model.Note
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[uuid.UUID]model.User),
		notes: make(map[uuid.UUID]model.Note),
		now:   time.Now,
	}
}

// Users returns a UserRepository view of the store.
func (s *MemoryStore) Users() UserRepository {
	return &memoryUserRepository{store: s}
}

// Notes returns a NoteRepository view of the store.
func (s *MemoryStore) Notes() NoteRepository {
	return &memoryNoteRepository{store: s}
}

// CountUsersByUsername reports how many users carry exactly username.
func (s *MemoryStore) CountUsersByUsername(username string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.Username == username {
			n++
		}
	}
	return n
}

// CountNotes reports the number of stored notes.
func (s *MemoryStore) CountNotes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// transaction runs fn while holding the store exclusively and restores the
// previous contents if it fails. Repositories handed to fn are only valid
// inside it.
func (s *MemoryStore) transaction(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[uuid.UUID]model.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	notes := make(map[uuid.UUID]model.Note, len(s.notes))
	for k, v := range s.notes {
		notes[k] = v
	}

	if err := fn(); err != nil {
		s.users = users
		s.notes = notes
		return err
	}
	return nil
}

func (s *MemoryStore) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) rlock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) stamp(created, updated *time.Time) {
	now := s.now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

type memoryUserRepository struct {
	store *MemoryStore
	inTx  bool
}

func (r *memoryUserRepository) Create(ctx context.Context, user *model.User) error {
	s := r.store
	defer s.lock(r.inTx)()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, ok := s.users[user.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return gorm.ErrDuplicatedKey
		}
	}

	s.stamp(&user.CreatedDate, &user.UpdatedDate)
	stored := *user
	stored.Notes = nil
	s.users[user.ID] = stored
	return nil
}

func (r *memoryUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	s := r.store
	defer s.rlock(r.inTx)()

	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *memoryUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	s := r.store
	defer s.rlock(r.inTx)()

	for _, u := range s.users {
		if u.Username == username {
			found := u
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	s := r.store
	defer s.lock(r.inTx)()

	if _, ok := s.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	for noteID, n := range s.notes {
		if n.UserID == id {
			delete(s.notes, noteID)
		}
	}
	delete(s.users, id)
	return nil
}

func (r *memoryUserRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo UserRepository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.store.transaction(func() error {
		return fn(ctx, &memoryUserRepository{store: r.store, inTx: true})
	})
}

type memoryNoteRepository struct {
	store *MemoryStore
	inTx  bool
}

func (r *memoryNoteRepository) Create(ctx context.Context, note *model.Note) error {
	s := r.store
	defer s.lock(r.inTx)()

	if _, ok := s.users[note.UserID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	if _, ok := s.notes[note.ID]; ok {
		return gorm.ErrDuplicatedKey
	}

	s.stamp(&note.CreatedDate, &note.UpdatedDate)
	stored := *note
	stored.User = nil
	s.notes[note.ID] = stored
	return nil
}

func (r *memoryNoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	s := r.store
	defer s.rlock(r.inTx)()

	n, ok := s.notes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if owner, ok := s.users[n.UserID]; ok {
		n.User = &owner
	}
	return &n, nil
}

func (r *memoryNoteRepository) FindByIDAndOwner(ctx context.Context, id, userID uuid.UUID) (*model.Note, error) {
	s := r.store
	defer s.rlock(r.inTx)()

	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return &n, nil
}

func (r *memoryNoteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Note, error) {
	s := r.store
	defer s.rlock(r.inTx)()

	notes := make([]model.Note, 0)
	for _, n := range s.notes {
		if n.UserID == userID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedDate.Equal(notes[j].CreatedDate) {
			return notes[i].CreatedDate.Before(notes[j].CreatedDate)
		}
		return notes[i].ID.String() < notes[j].ID.String()
	})
	return notes, nil
}

func (r *memoryNoteRepository) Delete(ctx context.Context, note *model.Note) error {
	s := r.store
	defer s.lock(r.inTx)()

	if _, ok := s.notes[note.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.notes, note.ID)
	return nil
}

func (r *memoryNoteRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo NoteRepository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.store.transaction(func() error {
		return fn(ctx, &memoryNoteRepository{store: r.store, inTx: true})
	})
}
