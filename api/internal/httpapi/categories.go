package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cityfix/api/internal/lifecycle"
	"cityfix/api/internal/repos"
	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := requireActor(w, r); !ok {
		return
	}
	categories, err := s.Categories.ListCategories(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		out = append(out, map[string]any{
			"id":     c.CategoryID,
			"name":   c.Name,
			"system": c.System,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type createCategoryBody struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	_, _, ok := requireRole(w, r, workflow.RoleAdmin)
	if !ok {
		return
	}
	var body createCategoryBody
	if !decodeJSON(w, r, &body) {
		return
	}
	name := strings.TrimSpace(body.Name)
	if len([]rune(name)) < 2 {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "name must be at least 2 characters", nil)
		return
	}

	category, err := s.Categories.CreateCategory(r.Context(), name)
	if err != nil {
		if errors.Is(err, repos.ErrCategoryExists) {
			httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", "category already exists", nil)
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":     category.CategoryID,
		"name":   category.Name,
		"system": category.System,
	})
}
