package store

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/cppla/teamfeed/models"
)

const maxTodoTitle = 120

// TodoPatch is a partial update. DueAtSet distinguishes an absent due_at
// from an explicit null (DueAt == nil), which clears it.
type TodoPatch struct {
	Title    *string
	DueAtSet bool
	DueAt    *string
	Done     *bool
}

// TodoStore keeps per-owner todos. Rows of other owners are reported as
// not found.
type TodoStore struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func NewTodoStore(db *gorm.DB, loc *time.Location) *TodoStore {
	if loc == nil {
		loc = time.Local
	}
	return &TodoStore{db: db, loc: loc, now: time.Now}
}

func (s *TodoStore) ListTodos(ctx context.Context, ownerID uint) ([]models.Todo, error) {
	todos := []models.Todo{}
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("done ASC, created_at DESC, id DESC").
		Find(&todos).Error
	if err != nil {
		return nil, Internal(err, "list todos")
	}
	return todos, nil
}

func (s *TodoStore) CreateTodo(ctx context.Context, ownerID uint, title, dueAt string) (*models.Todo, error) {
	title, err := checkTodoTitle(title)
	if err != nil {
		return nil, err
	}
	due, err := s.parseDue(dueAt)
	if err != nil {
		return nil, err
	}
	todo := models.Todo{OwnerID: ownerID, Title: title, DueAt: due}
	if err := s.db.WithContext(ctx).Create(&todo).Error; err != nil {
		return nil, Internal(err, "create todo")
	}
	return &todo, nil
}

// UpdateTodo applies patch. completed_at is set on a false→true transition
// of done, cleared on true→false and untouched otherwise.
func (s *TodoStore) UpdateTodo(ctx context.Context, ownerID, todoID uint, patch TodoPatch) (*models.Todo, error) {
	var todo models.Todo
	db := s.db.WithContext(ctx)
	if err := db.Where("id = ? AND owner_id = ?", todoID, ownerID).First(&todo).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("todo not found")
		}
		return nil, Internal(err, "load todo %d", todoID)
	}

	if patch.Title != nil {
		title, err := checkTodoTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		todo.Title = title
	}
	if patch.DueAtSet {
		var raw string
		if patch.DueAt != nil {
			raw = *patch.DueAt
		}
		due, err := s.parseDue(raw)
		if err != nil {
			return nil, err
		}
		todo.DueAt = due
	}
	if patch.Done != nil {
		switch {
		case *patch.Done && !todo.Done:
			now := s.now()
			todo.Done = true
			todo.CompletedAt = &now
		case !*patch.Done && todo.Done:
			todo.Done = false
			todo.CompletedAt = nil
		}
	}

	if err := db.Save(&todo).Error; err != nil {
		return nil, Internal(err, "save todo %d", todoID)
	}
	return &todo, nil
}

func (s *TodoStore) DeleteTodo(ctx context.Context, ownerID, todoID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", todoID, ownerID).Delete(&models.Todo{})
	if res.Error != nil {
		return Internal(res.Error, "delete todo %d", todoID)
	}
	if res.RowsAffected == 0 {
		return NotFound("todo not found")
	}
	return nil
}

func checkTodoTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", Validation("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTodoTitle {
		return "", Validation("title", "at most 120 characters")
	}
	return title, nil
}

var dueLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// parseDue accepts RFC 3339, or a zone-less date-time interpreted in loc.
// Empty input means no due date.
func (s *TodoStore) parseDue(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return &t, nil
		}
	}
	return nil, Validation("due_at", "must be an RFC 3339 timestamp")
}
