package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dailyflow/internal/mail"
	"dailyflow/internal/notify"
	"dailyflow/internal/store"
)

type emailReq struct {
	TaskTitle       string     `json:"taskTitle"`
	TaskDescription string     `json:"taskDescription"`
	StartTime       *time.Time `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
}

func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req emailReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.TaskTitle) == "" || req.StartTime == nil {
		writeError(w, http.StatusBadRequest, "Task title and start time are required")
		return
	}
	u, err := s.Repo.GetUser(r.Context(), callerID(r))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	end := *req.StartTime
	if req.EndTime != nil {
		end = *req.EndTime
	}

	if s.Mail == nil {
		writeError(w, http.StatusServiceUnavailable, mail.ErrNotConfigured.Error())
		return
	}
	err = s.Mail.SendTaskReminder(r.Context(), u.Email, u.FullName, req.TaskTitle, req.TaskDescription, *req.StartTime, end)
	switch {
	case errors.Is(err, mail.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to send email reminder")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message":   "Email reminder sent successfully",
			"recipient": u.Email,
			"taskTitle": req.TaskTitle,
		})
	}
}

type mailStatus struct {
	Connected  bool   `json:"connected"`
	Configured bool   `json:"configured"`
	Host       string `json:"host"`
	User       string `json:"user"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) emailStatus(w http.ResponseWriter, r *http.Request) {
	st := mailStatus{User: "Not set"}
	if s.Mail != nil {
		cfg := s.Mail.Config()
		st.Configured = s.Mail.Configured()
		st.Host = cfg.Host
		st.User = cfg.MaskedUser()

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := s.Mail.Verify(ctx); err != nil {
			st.Error = err.Error()
		} else {
			st.Connected = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"emailService": st})
}

type pushReq struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	TaskID string `json:"taskId"`
}

func (s *Server) sendPush(w http.ResponseWriter, r *http.Request) {
	var req pushReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "Title and body are required")
		return
	}
	uid := callerID(r)
	tag := notify.DefaultTag
	if req.TaskID != "" {
		tag = notify.TaskTag(req.TaskID)
	}
	p := s.session(r.Context(), uid).Presenter
	p.ShowNotification(r.Context(), req.Title, req.Body, tag)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Notification sent",
		"notificationId": fmt.Sprintf("%s_%d", uid, s.Clock.Now().UnixMilli()),
		"tag":            tag,
		"permission":     p.Permission(),
		"tabs":           s.Hub.Subscribers(uid),
	})
}

func (s *Server) pushStatus(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	p := s.session(r.Context(), uid).Presenter
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": uid,
		"notificationSupport": map[string]any{
			"supported":  p.Supported(),
			"permission": s.Hub.Permission(uid),
			"tabs":       s.Hub.Subscribers(uid),
			"open":       p.Open(),
		},
		"message": "Notification service status retrieved",
	})
}

const keepAlive = 25 * time.Second

// stream delivers notification events to one application tab as
// server-sent events.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	uid := callerID(r)
	s.session(r.Context(), uid)
	events, unsubscribe := s.Hub.Subscribe(uid, notify.ParsePermission(r.URL.Query().Get("permission")), 32)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) click(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.Sessions.Presenter(callerID(r)); ok {
		p.Click(chi.URLParam(r, "tag"))
	}
	w.WriteHeader(http.StatusNoContent)
}
