package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/search"
)

type queryRequest struct {
	SiteID   string `json:"siteId"`
	Question string `json:"question"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SiteID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "siteId required")
		return
	}
	if _, err := s.store.GetSite(r.Context(), req.SiteID); err != nil {
		writeError(s.logger, w, http.StatusNotFound, "site not found")
		return
	}

	result, err := s.searcher.Query(r.Context(), req.SiteID, req.Question)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuestion) {
			writeError(s.logger, w, http.StatusBadRequest, "question required")
			return
		}
		s.logger.Error("query failed", zap.String("site_id", req.SiteID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, result)
}
