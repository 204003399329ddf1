package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/seo"
)

type authRequest struct {
	Password string `json:"password"`
	Action   string `json:"action"`
}

// handleAuth issues or clears the dashboard session cookie.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Action == "logout" {
		http.SetCookie(w, &http.Cookie{
			Name:     authCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if s.cfg.Auth.Password == "" || req.Password != s.cfg.Auth.Password {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    s.sessionToken(),
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if projects == nil {
		projects = []seo.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

type projectActionRequest struct {
	Action  string      `json:"action"`
	ID      string      `json:"id"`
	Project seo.Project `json:"project"`
	Run     seo.Run     `json:"run"`
}

// handleProjectAction multiplexes project store mutations on one endpoint.
func (s *Server) handleProjectAction(w http.ResponseWriter, r *http.Request) {
	var req projectActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "save":
		p, err := s.store.SaveProject(ctx, req.Project)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "project": p})
	case "delete":
		if req.ID == "" {
			writeError(w, http.StatusBadRequest, "id required")
			return
		}
		if err := s.store.DeleteProject(ctx, req.ID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case "getRuns":
		runs, err := s.store.GetRuns(ctx, req.ID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if runs == nil {
			runs = []seo.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	case "saveRun":
		if req.ID == "" {
			writeError(w, http.StatusBadRequest, "id required")
			return
		}
		if err := s.store.SaveRun(ctx, req.ID, req.Run); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

type runRequest struct {
	ProjectID  string   `json:"projectId"`
	Domain     string   `json:"domain"`
	Competitor string   `json:"competitor"`
	Keywords   []string `json:"keywords"`
}

// handleProjectRun executes one aggregation run. With a projectId the run is
// persisted to that project's history; an ad hoc domain is not.
func (s *Server) handleProjectRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireSEOCredentials(w) {
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var (
		run seo.Run
		err error
	)
	if req.ProjectID != "" {
		run, err = s.agg.RunStored(r.Context(), req.ProjectID)
	} else {
		run, err = s.agg.RunProject(r.Context(), seo.Project{
			Domain:     req.Domain,
			Competitor: req.Competitor,
			Keywords:   req.Keywords,
		})
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleBacklinks(w http.ResponseWriter, r *http.Request) {
	if !s.requireSEOCredentials(w) {
		return
	}
	var req struct {
		TargetURL string `json:"targetUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	profile, err := s.agg.BacklinkProfile(r.Context(), req.TargetURL)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleCompetitorGap(w http.ResponseWriter, r *http.Request) {
	if !s.requireSEOCredentials(w) {
		return
	}
	var req struct {
		Domain     string `json:"domain"`
		Competitor string `json:"competitor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	gap, err := s.agg.CompetitorGap(r.Context(), req.Domain, req.Competitor)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gap)
}

type rankRequest struct {
	Keyword string `json:"keyword"`
	Domain  string `json:"domain"`
	TaskID  string `json:"taskId"`
}

// handleRank is the two-phase rank check: without a taskId it submits a new
// lookup, with one it polls. All polling state round-trips through the
// caller via the task id.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	if !s.requireSEOCredentials(w) {
		return
	}
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Keyword == "" || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "keyword and domain are required")
		return
	}

	var (
		check seo.RankCheck
		err   error
	)
	if req.TaskID == "" {
		check, err = s.ranker.Submit(r.Context(), req.Keyword, req.Domain)
	} else {
		check, err = s.ranker.Poll(r.Context(), req.Keyword, req.Domain, req.TaskID)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Research.APIKey == "" {
		writeError(w, http.StatusInternalServerError, "research credentials not configured")
		return
	}
	var req struct {
		SourceURL string `json:"sourceUrl"`
		TargetURL string `json:"targetUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SourceURL == "" || req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "sourceUrl and targetUrl are required")
		return
	}

	eval, err := s.research.Evaluate(r.Context(), req.SourceURL, req.TargetURL)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// handleGoogleAuth starts the OAuth consent flow. The project id rides the
// state parameter through the provider round trip.
func (s *Server) handleGoogleAuth(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "projectId required")
		return
	}
	http.Redirect(w, r, s.tokens.AuthCodeURL(projectID), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	projectID := q.Get("state")

	if q.Get("error") != "" || code == "" || projectID == "" {
		s.redirectDashboard(w, r, url.Values{"gsc": {"error"}})
		return
	}

	if _, err := s.tokens.Exchange(r.Context(), projectID, code); err != nil {
		s.logger.Error("oauth exchange failed",
			zap.String("project_id", projectID),
			zap.Error(err))
		s.redirectDashboard(w, r, url.Values{"gsc": {"error"}, "msg": {err.Error()}})
		return
	}
	s.redirectDashboard(w, r, url.Values{"gsc": {"connected"}, "projectId": {projectID}})
}

func (s *Server) redirectDashboard(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, s.cfg.Server.PublicBaseURL+"/dashboard?"+q.Encode(), http.StatusFound)
}

type gscRequest struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectId"`
	SiteURL   string `json:"siteUrl"`
	Days      int    `json:"days"`
}

// handleGSC multiplexes Search Console operations on one endpoint.
func (s *Server) handleGSC(w http.ResponseWriter, r *http.Request) {
	var req gscRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "projectId required")
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "status":
		set, err := s.tokens.Load(ctx, req.ProjectID)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"connected": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"connected": true, "connectedAt": set.ConnectedAt})
	case "disconnect":
		if err := s.tokens.Disconnect(ctx, req.ProjectID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case "sites":
		sites, err := s.gsc.Sites(ctx, req.ProjectID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if sites == nil {
			sites = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
	case "fetch":
		if req.SiteURL == "" {
			writeError(w, http.StatusBadRequest, "siteUrl required")
			return
		}
		days := req.Days
		if days <= 0 {
			days = gscFetchDays
		}
		snap, err := s.gsc.Snapshot(ctx, req.ProjectID, req.SiteURL, days)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snap)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

type reportRequest struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectId"`
	To        string `json:"to"`
	Notes     string `json:"notes"`
	DateRange int    `json:"dateRange"`
}

// handleReports serves report data and emails rendered reports.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "projectId required")
		return
	}
	days := req.DateRange
	if days <= 0 {
		days = defaultDays
	}

	ctx := r.Context()
	switch req.Action {
	case "getData":
		data, err := s.agg.Report(ctx, req.ProjectID, days)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, data)
	case "email":
		if s.cfg.Email.APIKey == "" {
			writeError(w, http.StatusInternalServerError, "email credentials not configured")
			return
		}
		id, err := s.reports.Email(ctx, req.ProjectID, req.To, req.Notes, days)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// requireSEOCredentials fails the request before any upstream call when the
// SEO data API credentials are not configured.
func (s *Server) requireSEOCredentials(w http.ResponseWriter) bool {
	if s.cfg.DataForSEO.Login == "" || s.cfg.DataForSEO.Password == "" {
		writeError(w, http.StatusInternalServerError, "seo data credentials not configured")
		return false
	}
	return true
}
