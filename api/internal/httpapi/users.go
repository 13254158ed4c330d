package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cityfix/api/internal/lifecycle"
	"cityfix/api/internal/scoring"
	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := requireActor(w, r)
	if !ok {
		return
	}
	user, err := s.Users.GetUserByID(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := map[string]any{
		"id":          user.UserID,
		"subject":     user.Subject,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"role":        user.Role,
		"points":      user.Points,
		"ratingAvg":   user.RatingAvg,
		"ratingCount": user.RatingCount,
		"createdAt":   user.CreatedAt,
	}
	switch workflow.NormalizeRole(user.Role) {
	case workflow.RoleCitizen:
		if filed, err := s.Requests.CountByCitizen(r.Context(), userID); err == nil {
			out["requestsFiled"] = filed
		}
		if ahead, err := s.Users.CountPointsAhead(r.Context(), user.Points); err == nil {
			out["rank"] = ahead + 1
		}
	case workflow.RoleWorker:
		out["ratingAvg"] = scoring.EffectiveRating(user.RatingAvg, user.RatingCount)
		if counts, err := s.Requests.CountByWorker(r.Context(), userID); err == nil {
			out["tasksByStatus"] = counts
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type leaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	Points      int       `json:"points,omitempty"`
	RatingAvg   float64   `json:"ratingAvg,omitempty"`
	RatingCount int       `json:"ratingCount,omitempty"`
}

type leaderboardResponse struct {
	Role    string             `json:"role"`
	Entries []leaderboardEntry `json:"entries"`
	MeRank  *int               `json:"meRank,omitempty"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := requireActor(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	role := workflow.NormalizeRole(r.URL.Query().Get("role"))
	if role == "" {
		role = workflow.RoleCitizen
	}
	if role != workflow.RoleCitizen && role != workflow.RoleWorker {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "role must be citizen or worker", nil)
		return
	}

	var cached leaderboardResponse
	cacheKey := fmt.Sprintf("leaderboard:%s:%d", role, limit)
	ttl := time.Duration(s.Cfg.LeaderboardCacheSec) * time.Second
	useCache := s.Cache != nil && ttl > 0

	var entries []leaderboardEntry
	if useCache {
		if hit, err := s.Cache.GetJSON(r.Context(), cacheKey, &cached); err == nil && hit {
			entries = cached.Entries
		}
	}
	if entries == nil {
		var err error
		if role == workflow.RoleWorker {
			entries, err = s.workerBoard(r, limit)
		} else {
			entries, err = s.citizenBoard(r, limit)
		}
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if useCache {
			_ = s.Cache.SetJSON(r.Context(), cacheKey, leaderboardResponse{Role: role, Entries: entries}, ttl)
		}
	}

	resp := leaderboardResponse{Role: role, Entries: entries}
	// The caller's own rank is never cached; it depends on who asks.
	if role == workflow.RoleCitizen {
		if me, err := s.Users.GetUserByID(r.Context(), userID); err == nil {
			if ahead, err := s.Users.CountPointsAhead(r.Context(), me.Points); err == nil {
				rank := ahead + 1
				resp.MeRank = &rank
			}
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) citizenBoard(r *http.Request, limit int) ([]leaderboardEntry, error) {
	users, err := s.Users.Leaderboard(r.Context(), limit)
	if err != nil {
		return nil, err
	}
	points := make([]int, len(users))
	for i, u := range users {
		points[i] = u.Points
	}
	ranks := scoring.DenseRankByPoints(points)
	entries := make([]leaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, leaderboardEntry{
			Rank:        ranks[i],
			UserID:      u.UserID,
			DisplayName: u.DisplayName,
			Points:      u.Points,
		})
	}
	return entries, nil
}

func (s *Server) workerBoard(r *http.Request, limit int) ([]leaderboardEntry, error) {
	workers, err := s.Users.ListWorkers(r.Context(), limit, 0)
	if err != nil {
		return nil, err
	}
	workers = scoring.RankWorkers(workers)
	ratings := make([]float64, len(workers))
	for i, u := range workers {
		ratings[i] = scoring.EffectiveRating(u.RatingAvg, u.RatingCount)
	}
	ranks := scoring.DenseRankByRating(ratings)
	entries := make([]leaderboardEntry, 0, len(workers))
	for i, u := range workers {
		entries = append(entries, leaderboardEntry{
			Rank:        ranks[i],
			UserID:      u.UserID,
			DisplayName: u.DisplayName,
			RatingAvg:   ratings[i],
			RatingCount: u.RatingCount,
		})
	}
	return entries, nil
}
