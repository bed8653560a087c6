package controllers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

// TodoController exposes the caller's todo list.
type TodoController struct {
	todos *store.TodoStore
}

func NewTodoController(todos *store.TodoStore) *TodoController {
	return &TodoController{todos: todos}
}

func (t *TodoController) ListTodos(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	todos, err := t.todos.ListTodos(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, todos)
}

func (t *TodoController) CreateTodo(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	var req struct {
		Title string  `json:"title"`
		DueAt *string `json:"due_at"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	var due string
	if req.DueAt != nil {
		due = *req.DueAt
	}
	todo, err := t.todos.CreateTodo(ctx.Request.Context(), userID, req.Title, due)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, todo)
}

// decodeTodoPatch keeps "absent" and "null" apart, which a plain struct
// binding cannot.
func decodeTodoPatch(body map[string]json.RawMessage) (store.TodoPatch, error) {
	var patch store.TodoPatch
	if raw, ok := body["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return patch, store.Validation("title", "must be a string")
		}
		patch.Title = &title
	}
	if raw, ok := body["due_at"]; ok {
		patch.DueAtSet = true
		if err := json.Unmarshal(raw, &patch.DueAt); err != nil {
			return patch, store.Validation("due_at", "must be a string or null")
		}
	}
	if raw, ok := body["done"]; ok {
		var done bool
		if err := json.Unmarshal(raw, &done); err != nil {
			return patch, store.Validation("done", "must be a boolean")
		}
		patch.Done = &done
	}
	return patch, nil
}

// UpdateTodo applies a partial update; "due_at": null clears the due date.
func (t *TodoController) UpdateTodo(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	todoID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var body map[string]json.RawMessage
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	patch, err := decodeTodoPatch(body)
	if err != nil {
		respondError(ctx, err)
		return
	}
	todo, err := t.todos.UpdateTodo(ctx.Request.Context(), userID, todoID, patch)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, todo)
}

func (t *TodoController) DeleteTodo(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	todoID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := t.todos.DeleteTodo(ctx.Request.Context(), userID, todoID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "todo deleted"})
}
