package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/storage"
)

type createSiteRequest struct {
	Domain   string `json:"domain"`
	StartURL string `json:"startUrl"`
}

type sitePayload struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	StartURL  string    `json:"startUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type sitePagePayload struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	LastCrawledAt time.Time `json:"lastCrawledAt"`
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}

	site := storage.Site{ID: uuid.NewString()}
	if req.StartURL != "" {
		normalized, err := crawler.NormalizeURL(req.StartURL)
		if err != nil {
			writeError(s.logger, w, http.StatusBadRequest, "invalid startUrl")
			return
		}
		site.StartURL = normalized
		if req.Domain == "" {
			domain, err := crawler.ExtractDomain(normalized)
			if err != nil {
				writeError(s.logger, w, http.StatusBadRequest, "invalid startUrl")
				return
			}
			req.Domain = domain
		}
	}
	site.Domain = strings.ToLower(strings.TrimSpace(req.Domain))
	if site.Domain == "" {
		writeError(s.logger, w, http.StatusBadRequest, "domain or startUrl required")
		return
	}

	if existing, err := s.store.GetSiteByDomain(r.Context(), site.Domain); err == nil {
		writeJSON(s.logger, w, http.StatusConflict, map[string]any{
			"error": "site already exists",
			"site":  toSitePayload(existing),
		})
		return
	}

	if err := s.store.CreateSite(r.Context(), site); err != nil {
		s.logger.Error("create site failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to create site")
		return
	}
	created, err := s.store.GetSite(r.Context(), site.ID)
	if err != nil {
		created = site
	}
	writeJSON(s.logger, w, http.StatusCreated, toSitePayload(created))
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.ListSites(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	payload := make([]sitePayload, 0, len(sites))
	for _, site := range sites {
		payload = append(payload, toSitePayload(site))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sites": payload})
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if err := s.store.DeleteSite(r.Context(), siteID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "site not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, "failed to delete site")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSitePages(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if _, err := s.store.GetSite(r.Context(), siteID); err != nil {
		writeError(s.logger, w, http.StatusNotFound, "site not found")
		return
	}
	pages, err := s.store.ListPages(r.Context(), siteID)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	payload := make([]sitePagePayload, 0, len(pages))
	for _, p := range pages {
		payload = append(payload, sitePagePayload{
			ID:            p.ID,
			URL:           p.URL,
			Title:         p.Title,
			LastCrawledAt: p.LastCrawledAt,
		})
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"pages": payload})
}

func toSitePayload(site storage.Site) sitePayload {
	return sitePayload{
		ID:        site.ID,
		Domain:    site.Domain,
		StartURL:  site.StartURL,
		CreatedAt: site.CreatedAt,
	}
}
