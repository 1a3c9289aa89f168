package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/store"
	"github.com/seolens/searchsync/internal/syncer"
)

const dateLayout = "2006-01-02"

type createSiteRequest struct {
	Property string `json:"property"`
	Label    string `json:"label"`
}

type siteView struct {
	ID        int64     `json:"id"`
	Property  string    `json:"property"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

func toSiteView(s search.Site) siteView {
	return siteView{ID: s.ID, Property: s.Property, Label: s.Label, CreatedAt: s.CreatedAt}
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Property == "" {
		s.writeError(w, http.StatusBadRequest, "property required")
		return
	}
	id, err := s.sites.CreateSite(r.Context(), req.Property, req.Label)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"site_id": id})
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.sites.ListSites(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]siteView, 0, len(sites))
	for _, site := range sites {
		views = append(views, toSiteView(site))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sites": views})
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := s.siteID(w, r)
	if !ok {
		return
	}
	site, err := s.sites.GetSite(r.Context(), siteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "site not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, toSiteView(site))
}

type syncRequest struct {
	SyncType string `json:"sync_type"`
	Days     int    `json:"days"`
	Mode     string `json:"mode"`
	Resume   bool   `json:"resume"`
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	siteID, ok := s.siteID(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	syncType, err := parseSyncType(req.SyncType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode := search.ModeSkip
	if req.Mode != "" {
		mode = search.UpsertMode(req.Mode)
		if !mode.Valid() {
			s.writeError(w, http.StatusBadRequest, "invalid mode, want skip or overwrite")
			return
		}
	}
	days := req.Days
	if days <= 0 {
		days = s.cfg.Sync.DefaultDays
	}

	stats, err := s.syncer.Sync(r.Context(), syncer.Options{
		SiteID:    siteID,
		TotalDays: days,
		SyncType:  syncType,
		Mode:      mode,
		Resume:    req.Resume,
	})
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrSyncInProgress):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "site not found")
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type progressView struct {
	ID                 int64      `json:"id"`
	SiteID             int64      `json:"site_id"`
	SyncType           string     `json:"sync_type"`
	LastCompletedDate  *string    `json:"last_completed_date"`
	TotalDaysRequested int        `json:"total_days_requested"`
	DaysCompleted      int        `json:"days_completed"`
	RecordsSynced      int64      `json:"records_synced"`
	StartedAt          time.Time  `json:"started_at"`
	LastUpdated        time.Time  `json:"last_updated"`
	CompletedAt        *time.Time `json:"completed_at"`
	Error              *string    `json:"error"`
	Active             bool       `json:"active"`
}

func toProgressView(p store.SyncProgress) progressView {
	v := progressView{
		ID:                 p.ID,
		SiteID:             p.SiteID,
		SyncType:           string(p.SyncType),
		TotalDaysRequested: p.TotalDaysRequested,
		DaysCompleted:      p.DaysCompleted,
		RecordsSynced:      p.RecordsSynced,
		StartedAt:          p.StartedAt,
		LastUpdated:        p.LastUpdated,
		CompletedAt:        p.CompletedAt,
		Error:              p.Error,
		Active:             p.Active(),
	}
	if p.LastCompletedDate != nil {
		d := p.LastCompletedDate.Format(dateLayout)
		v.LastCompletedDate = &d
	}
	return v
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	siteID, ok := s.siteID(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("progress_id"); raw != "" {
		progressID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid progress_id")
			return
		}
		prog, err := s.progress.GetSync(r.Context(), progressID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "sync not found")
				return
			}
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, toProgressView(prog))
		return
	}

	syncType, err := parseSyncType(r.URL.Query().Get("sync_type"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prog, err := s.progress.GetIncompleteSync(r.Context(), siteID, syncType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no incomplete sync")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, toProgressView(prog))
}

type aggregateRequest struct {
	Date           string `json:"date"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	ForceOverwrite bool   `json:"force_overwrite"`
}

func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) {
	siteID, ok := s.siteID(w, r)
	if !ok {
		return
	}
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		res := s.aggregator.AggregateDay(r.Context(), siteID, date, req.ForceOverwrite)
		s.writeJSON(w, http.StatusOK, res)
		return
	}

	if req.StartDate == "" || req.EndDate == "" {
		s.writeError(w, http.StatusBadRequest, "date or start_date/end_date required")
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid start_date, want YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid end_date, want YYYY-MM-DD")
		return
	}
	summary, err := s.aggregator.AggregateRange(r.Context(), siteID, start, end, req.ForceOverwrite)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) siteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "site_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid site_id")
		return 0, false
	}
	return id, true
}
