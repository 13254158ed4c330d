package httpapi

import (
	"net/http"

	"cityfix/api/internal/repos"
	"cityfix/shared/cachex"
	"cityfix/shared/clients/geo"
	"cityfix/shared/config"
	"cityfix/shared/logx"
	"cityfix/shared/sla"
)

// Server bundles the handler dependencies. Routes assume auth and actor
// middleware already ran.
type Server struct {
	Cfg        config.Config
	Logger     logx.Logger
	Policy     sla.Policy
	Requests   *repos.RequestsRepo
	Users      *repos.UsersRepo
	Categories *repos.CategoriesRepo
	Cache      *cachex.Client
	Geo        *geo.Client
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/requests", s.handleCreateRequest)
	mux.HandleFunc("GET /api/v1/requests", s.handleListOwnRequests)
	mux.HandleFunc("GET /api/v1/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("POST /api/v1/requests/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/v1/requests/{id}/rework", s.handleRework)

	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/v1/tasks/{id}/start", s.handleStartTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/complete", s.handleCompleteTask)

	mux.HandleFunc("GET /api/v1/admin/requests", s.handleAdminListRequests)
	mux.HandleFunc("POST /api/v1/admin/requests/{id}/assign", s.handleAssign)
	mux.HandleFunc("POST /api/v1/admin/requests/{id}/reject", s.handleAdminReject)
	mux.HandleFunc("GET /api/v1/admin/workers", s.handleListWorkers)
	mux.HandleFunc("POST /api/v1/admin/categories", s.handleCreateCategory)

	mux.HandleFunc("GET /api/v1/categories", s.handleListCategories)
	mux.HandleFunc("GET /api/v1/me", s.handleMe)
	mux.HandleFunc("GET /api/v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/v1/analytics/summary", s.handleAnalyticsSummary)
}
