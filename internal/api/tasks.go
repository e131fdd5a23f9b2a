package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dailyflow/internal/domain"
	"dailyflow/internal/reminder"
	"dailyflow/internal/store"
)

type reminderReq struct {
	Enabled       *bool `json:"enabled"`
	MinutesBefore *int  `json:"minutesBefore"`
}

// taskReq carries both create and partial update bodies; nil fields are
// left unchanged on update.
type taskReq struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	StartTime   *time.Time       `json:"startTime"`
	EndTime     *time.Time       `json:"endTime"`
	Priority    *domain.Priority `json:"priority"`
	Completed   *bool            `json:"completed"`
	Reminder    *reminderReq     `json:"reminder"`
}

// apply merges req into t and reports whether the reminder schedule changed.
func (req taskReq) apply(t *domain.Task) (rescheduled bool) {
	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.StartTime != nil {
		rescheduled = rescheduled || !req.StartTime.Equal(t.StartTime)
		t.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		t.EndTime = *req.EndTime
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	if req.Reminder != nil {
		if t.Reminder == nil {
			t.Reminder = &domain.Reminder{MinutesBefore: domain.DefaultLeadMinutes}
			rescheduled = true
		}
		if e := req.Reminder.Enabled; e != nil && *e != t.Reminder.Enabled {
			t.Reminder.Enabled = *e
			rescheduled = true
		}
		if m := req.Reminder.MinutesBefore; m != nil && *m != t.Reminder.MinutesBefore {
			t.Reminder.MinutesBefore = *m
			rescheduled = true
		}
	}
	if rescheduled && t.Reminder != nil {
		t.Reminder.Notified = false
	}
	return rescheduled
}

func (s *Server) writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Task not found or you don't have permission to view it")
	case errors.Is(err, domain.ErrTitleRequired), errors.Is(err, domain.ErrTimeRequired),
		errors.Is(err, domain.ErrInvalidTimeRange), errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrNegativeLeadTime):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		serverError(w, r, err)
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	reminders := s.session(r.Context(), uid).Reminders
	rev := reminders.Revision()
	tasks, err := s.Repo.ListTasks(r.Context(), uid)
	if err != nil {
		serverError(w, r, err)
		return
	}
	reminders.Reload(rev, tasks)
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == nil || req.StartTime == nil || req.EndTime == nil {
		writeError(w, http.StatusBadRequest, "Title, start time, and end time are required")
		return
	}
	uid := callerID(r)
	t := domain.Task{UserID: uid, Priority: domain.PriorityMedium}
	req.apply(&t)

	created, err := s.Repo.CreateTask(r.Context(), t)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.session(r.Context(), uid).Reminders.Schedule(created)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Task created successfully", "task": created})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.Repo.GetTask(r.Context(), callerID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	uid := callerID(r)
	t, err := s.Repo.GetTask(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	req.apply(&t)
	updated, err := s.Repo.UpdateTask(r.Context(), t)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.session(r.Context(), uid).Reminders.Schedule(updated)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Task updated successfully", "task": updated})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	id := chi.URLParam(r, "id")
	if err := s.Repo.DeleteTask(r.Context(), uid, id); err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.session(r.Context(), uid).Reminders.Clear(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Repo.ListTasks(r.Context(), callerID(r))
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Summarize(tasks, s.Clock.Now(), s.Location))
}

type remindersResp struct {
	Available bool             `json:"available"`
	Entries   []reminder.Entry `json:"entries"`
	LeadTimes []int            `json:"leadTimes"`
}

func (s *Server) reminders(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.Context(), callerID(r))
	entries := sess.Reminders.Entries()
	if entries == nil {
		entries = []reminder.Entry{}
	}
	writeJSON(w, http.StatusOK, remindersResp{
		Available: sess.Reminders.Available(),
		Entries:   entries,
		LeadTimes: domain.LeadTimes,
	})
}
