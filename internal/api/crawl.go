package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/storage"
)

// keepAliveInterval is how often the crawl stream emits a comment line so
// intermediaries do not drop an idle connection.
const keepAliveInterval = 15 * time.Second

type crawlRequest struct {
	SiteID   string `json:"siteId"`
	StartURL string `json:"startUrl"`
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SiteID == "" || req.StartURL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "siteId and startUrl required")
		return
	}

	outcomes, err := s.crawler.Run(r.Context(), req.SiteID, req.StartURL, 0, nil)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(s.logger, w, http.StatusNotFound, "site not found")
		case errors.Is(err, crawler.ErrStartURLMismatch):
			writeError(s.logger, w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("crawl failed", zap.String("site_id", req.SiteID), zap.Error(err))
			writeError(s.logger, w, http.StatusInternalServerError, "crawl failed")
		}
		return
	}
	if outcomes == nil {
		outcomes = []crawler.Outcome{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"crawled": outcomes})
}

// streamCrawl runs a crawl and reports progress over server-sent events.
// Each crawl event is one data frame; a comment frame goes out every
// keepAliveInterval while the crawl is idle.
func (s *Server) streamCrawl(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("siteId")
	startURL := r.URL.Query().Get("startUrl")
	if siteID == "" || startURL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "siteId and startUrl required")
		return
	}
	if _, err := s.store.GetSite(r.Context(), siteID); err != nil {
		writeError(s.logger, w, http.StatusNotFound, "site not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(s.logger, w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan crawler.Event, 16)
	done := make(chan error, 1)
	go func() {
		_, err := s.crawler.Run(r.Context(), siteID, startURL, 0, func(ev crawler.Event) {
			select {
			case events <- ev:
			case <-r.Context().Done():
			}
		})
		done <- err
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Drain the crawl goroutine; Run returns promptly on cancel.
			<-done
			return
		case ev := <-events:
			s.writeEvent(w, flusher, ev)
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case err := <-done:
			// Flush any events buffered before the crawl finished.
			for {
				select {
				case ev := <-events:
					s.writeEvent(w, flusher, ev)
					continue
				default:
				}
				break
			}
			if err != nil && !errors.Is(err, crawler.ErrStartURLMismatch) {
				s.logger.Error("crawl stream failed", zap.String("site_id", siteID), zap.Error(err))
			}
			if err != nil {
				s.writeEvent(w, flusher, crawler.Event{
					Type:    crawler.EventStatus,
					Message: "crawl failed: " + err.Error(),
				})
				s.writeEvent(w, flusher, crawler.Event{Type: crawler.EventDone})
			}
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, ev crawler.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event failed", zap.Error(err))
		return
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return
	}
	flusher.Flush()
}
