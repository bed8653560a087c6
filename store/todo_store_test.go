package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestTodoCompletionTransitions(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	todos := NewTodoStore(db, time.UTC)
	fixed := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	todos.now = func() time.Time { return fixed }
	ctx := context.Background()

	todo, err := todos.CreateTodo(ctx, alice.ID, "  write report  ", "")
	require.NoError(t, err)
	assert.Equal(t, "write report", todo.Title)
	assert.False(t, todo.Done)
	assert.Nil(t, todo.CompletedAt)
	assert.Nil(t, todo.DueAt)

	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Done: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, todo.Done)
	require.NotNil(t, todo.CompletedAt)
	assert.True(t, fixed.Equal(*todo.CompletedAt))

	// done -> done keeps the first completion time
	todos.now = func() time.Time { return fixed.Add(time.Hour) }
	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Done: boolPtr(true)})
	require.NoError(t, err)
	require.NotNil(t, todo.CompletedAt)
	assert.True(t, fixed.Equal(*todo.CompletedAt))

	// a title-only patch leaves completion alone
	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Title: strPtr("final report")})
	require.NoError(t, err)
	assert.Equal(t, "final report", todo.Title)
	assert.True(t, todo.Done)
	require.NotNil(t, todo.CompletedAt)

	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Done: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, todo.Done)
	assert.Nil(t, todo.CompletedAt)

	list, err := todos.ListTodos(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].CompletedAt)
	assert.Equal(t, "final report", list[0].Title)
}

func TestTodoListOrder(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	todos := NewTodoStore(db, time.UTC)
	ctx := context.Background()

	a, err := todos.CreateTodo(ctx, alice.ID, "a", "")
	require.NoError(t, err)
	b, err := todos.CreateTodo(ctx, alice.ID, "b", "")
	require.NoError(t, err)
	c, err := todos.CreateTodo(ctx, alice.ID, "c", "")
	require.NoError(t, err)
	_, err = todos.UpdateTodo(ctx, alice.ID, c.ID, TodoPatch{Done: boolPtr(true)})
	require.NoError(t, err)

	list, err := todos.ListTodos(ctx, alice.ID)
	require.NoError(t, err)
	var ids []uint
	for _, td := range list {
		ids = append(ids, td.ID)
	}
	// open items newest first, then done items
	assert.Equal(t, []uint{b.ID, a.ID, c.ID}, ids)
}

func TestTodosAreScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	todos := NewTodoStore(db, time.UTC)
	ctx := context.Background()

	todo, err := todos.CreateTodo(ctx, alice.ID, "private", "")
	require.NoError(t, err)

	list, err := todos.ListTodos(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = todos.UpdateTodo(ctx, bob.ID, todo.ID, TodoPatch{Done: boolPtr(true)})
	requireKind(t, err, KindNotFound)
	requireKind(t, todos.DeleteTodo(ctx, bob.ID, todo.ID), KindNotFound)

	require.NoError(t, todos.DeleteTodo(ctx, alice.ID, todo.ID))
	requireKind(t, todos.DeleteTodo(ctx, alice.ID, todo.ID), KindNotFound)
}

func TestTodoTitleValidation(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	todos := NewTodoStore(db, time.UTC)
	ctx := context.Background()

	for _, title := range []string{"", "   ", strings.Repeat("x", 121)} {
		_, err := todos.CreateTodo(ctx, alice.ID, title, "")
		assert.Equal(t, "title", requireKind(t, err, KindValidation).Field)
	}
	todo, err := todos.CreateTodo(ctx, alice.ID, strings.Repeat("é", 120), "")
	require.NoError(t, err)

	_, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Title: strPtr(" ")})
	requireKind(t, err, KindValidation)
}

func TestTodoDueAt(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	shanghai := time.FixedZone("CST", 8*3600)
	todos := NewTodoStore(db, shanghai)
	ctx := context.Background()

	todo, err := todos.CreateTodo(ctx, alice.ID, "ship", "2026-05-01T09:30:00Z")
	require.NoError(t, err)
	require.NotNil(t, todo.DueAt)
	assert.True(t, time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC).Equal(*todo.DueAt))

	// zone-less input is read in the configured zone
	local, err := todos.CreateTodo(ctx, alice.ID, "call", "2026-05-01T09:30")
	require.NoError(t, err)
	require.NotNil(t, local.DueAt)
	assert.True(t, time.Date(2026, 5, 1, 1, 30, 0, 0, time.UTC).Equal(*local.DueAt))

	_, err = todos.CreateTodo(ctx, alice.ID, "bad", "next tuesday")
	assert.Equal(t, "due_at", requireKind(t, err, KindValidation).Field)

	// absent due_at is untouched, explicit null clears it
	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Title: strPtr("ship it")})
	require.NoError(t, err)
	require.NotNil(t, todo.DueAt)

	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{DueAtSet: true})
	require.NoError(t, err)
	assert.Nil(t, todo.DueAt)

	todo, err = todos.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{DueAtSet: true, DueAt: strPtr("2026-06-01 08:00")})
	require.NoError(t, err)
	require.NotNil(t, todo.DueAt)
	assert.True(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Equal(*todo.DueAt))
}
