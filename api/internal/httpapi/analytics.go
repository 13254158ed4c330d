package httpapi

import (
	"net/http"
	"time"

	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

type analyticsSummary struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"byStatus"`
	Overdue         int            `json:"overdue"`
	AvgCloseMinutes *float64       `json:"avgCloseMinutes"`
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	_, _, ok := requireRole(w, r, workflow.RoleAdmin)
	if !ok {
		return
	}

	const cacheKey = "analytics:summary"
	ttl := time.Duration(s.Cfg.AnalyticsCacheSec) * time.Second
	useCache := s.Cache != nil && ttl > 0

	var out analyticsSummary
	if useCache {
		if hit, err := s.Cache.GetJSON(r.Context(), cacheKey, &out); err == nil && hit {
			httpx.WriteJSON(w, http.StatusOK, out)
			return
		}
	}

	summary, err := s.Requests.Summarize(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	byStatus := make(map[string]int, len(workflow.AllStatuses()))
	for _, status := range workflow.AllStatuses() {
		byStatus[status] = summary.ByStatus[status]
	}
	out = analyticsSummary{
		Total:           summary.Total,
		ByStatus:        byStatus,
		Overdue:         summary.Overdue,
		AvgCloseMinutes: summary.AvgCloseMinutes,
	}
	if useCache {
		_ = s.Cache.SetJSON(r.Context(), cacheKey, out, ttl)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
