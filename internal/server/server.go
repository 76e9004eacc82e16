package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/config"
	"github.com/huntingdonterrace/issueboard/internal/dispatch"
	"github.com/huntingdonterrace/issueboard/internal/report"
	"github.com/huntingdonterrace/issueboard/internal/scheduler"
	"github.com/huntingdonterrace/issueboard/internal/store"
)

// ReportSender triggers one on-demand delivery. *dispatch.Reporter
// satisfies it.
type ReportSender interface {
	SendNow(ctx context.Context, target dispatch.Target) (dispatch.Attempt, *report.Summary)
}

// ChannelDirectory exposes the live sessions. *channel.Manager satisfies
// it.
type ChannelDirectory interface {
	Get(name string) (channel.Channel, bool)
	Enabled() []string
}

// Server is the operator surface: issue passthrough for the board, the
// "send report now" trigger, session status, and whatsapp pairing.
type Server struct {
	cfg      config.ServerConfig
	store    store.Store
	reporter ReportSender
	channels ChannelDirectory
	sched    *scheduler.Scheduler
	httpSrv  *http.Server
}

func New(cfg config.ServerConfig, st store.Store, reporter ReportSender, channels ChannelDirectory, sched *scheduler.Scheduler) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		reporter: reporter,
		channels: channels,
		sched:    sched,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/issues", s.handleIssues)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/channels/whatsapp/init", s.handleWhatsAppInit)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.Handler(),
	}

	go func() {
		log.Printf("[server] listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[server] error: %v", err)
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	log.Printf("[server] stopped")
	return nil
}

type issuePayload struct {
	Unit        string `json:"unit"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Reported    string `json:"dateReported,omitempty"`
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		issues, err := s.store.ListIssues(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, fmt.Sprintf("fetch issues: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"issues":  issueViews(issues),
		})

	case http.MethodPost:
		var payload issuePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if payload.Description == "" {
			writeError(w, http.StatusBadRequest, "description is required")
			return
		}

		fields := store.IssueFields{
			Unit:        payload.Unit,
			Category:    payload.Category,
			Description: payload.Description,
			Status:      payload.Status,
			Notes:       payload.Notes,
		}
		if payload.Reported != "" {
			reported, err := time.Parse("2006-01-02", payload.Reported)
			if err != nil {
				writeError(w, http.StatusBadRequest, "dateReported must be YYYY-MM-DD")
				return
			}
			fields.Reported = reported
		}

		created, err := s.store.CreateIssue(r.Context(), fields)
		if err != nil {
			writeError(w, http.StatusBadGateway, fmt.Sprintf("create issue: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"issue":   issueView(created),
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var target dispatch.Target
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if target.Channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}

	attempt, summary := s.reporter.SendNow(r.Context(), target)

	resp := map[string]any{
		"success": attempt.Outcome == dispatch.OutcomeSent,
		"attempt": attempt,
	}
	if attempt.Outcome == dispatch.OutcomeSent && summary != nil {
		resp["report"] = summaryView(summary)
	}

	status := http.StatusOK
	if attempt.Outcome != dispatch.OutcomeSent {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	channels := make(map[string]any)
	for _, name := range s.channels.Enabled() {
		ch, _ := s.channels.Get(name)
		channels[name] = map[string]any{
			"state": ch.State().String(),
			"ready": ch.Ready(),
		}
	}

	resp := map[string]any{
		"success":  true,
		"channels": channels,
	}
	if s.sched != nil {
		lastAt, attempts := s.sched.LastRun()
		if !lastAt.IsZero() {
			resp["lastScheduledRun"] = map[string]any{
				"at":       lastAt,
				"attempts": attempts,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWhatsAppInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ch, ok := s.channels.Get("whatsapp")
	if !ok {
		writeError(w, http.StatusNotFound, "whatsapp channel not configured")
		return
	}
	wa, ok := ch.(*channel.WhatsAppChannel)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unexpected channel type")
		return
	}

	// Idempotent: a session already Pairing or Ready is left alone, so the
	// operator can poll this endpoint without spawning duplicate QR
	// challenges.
	if err := wa.Start(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("initialize whatsapp: %v", err))
		return
	}

	resp := map[string]any{
		"success": true,
		"state":   wa.State().String(),
	}
	if code := wa.PairingCode(); code != "" {
		resp["pairingCode"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}

func issueViews(issues []store.IssueRecord) []map[string]any {
	out := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueView(issue))
	}
	return out
}

func issueView(issue store.IssueRecord) map[string]any {
	v := map[string]any{
		"id":          issue.ID,
		"unit":        issue.Unit,
		"category":    issue.Category,
		"description": issue.Description,
		"status":      issue.Status,
		"createdTime": issue.Created,
	}
	if issue.Notes != "" {
		v["notes"] = issue.Notes
	}
	if !issue.Reported.IsZero() {
		v["dateReported"] = issue.Reported.Format("2006-01-02")
	}
	return v
}

func summaryView(s *report.Summary) map[string]any {
	return map[string]any{
		"weekStart":      s.WeekStart.Format("2006-01-02"),
		"weekEnd":        s.WeekEnd.Format("2006-01-02"),
		"totalIssues":    s.TotalIssues,
		"newIssues":      s.NewIssues,
		"resolvedIssues": s.ResolvedIssues,
		"byCategory":     s.ByCategory,
		"byStatus":       s.ByStatus,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
