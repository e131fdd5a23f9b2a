package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"dailyflow/internal/auth"
	"dailyflow/internal/clock"
	"dailyflow/internal/mail"
	"dailyflow/internal/notify"
	"dailyflow/internal/session"
	"dailyflow/internal/store"
	"dailyflow/internal/worker"
)

// DeliveryStats is implemented by the reminder delivery pool.
type DeliveryStats interface {
	Stats() worker.Stats
}

type Deps struct {
	Repo     store.Repository
	Auth     *auth.Manager
	Sessions *session.Manager
	Hub      *notify.Hub
	Mail     *mail.Service
	Delivery DeliveryStats
	Location *time.Location
	Clock    clock.Clock
	Debug    bool // mounts /debug/pprof
}

type Server struct {
	r *chi.Mux
	Deps
}

func NewServer(d Deps) http.Handler {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Hub == nil {
		d.Hub = notify.NewHub()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, Deps: d}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/logout", s.logout)
			r.Get("/user/profile", s.profile)
			r.Put("/user/profile", s.updateProfile)
			r.Put("/user/password", s.changePassword)

			r.Get("/tasks", s.listTasks)
			r.Post("/tasks", s.createTask)
			r.Get("/tasks/summary", s.summary)
			r.Get("/tasks/{id}", s.getTask)
			r.Put("/tasks/{id}", s.updateTask)
			r.Delete("/tasks/{id}", s.deleteTask)

			r.Get("/reminders", s.reminders)

			r.Post("/notifications/email", s.sendEmail)
			r.Get("/notifications/email", s.emailStatus)
			r.Post("/notifications/push", s.sendPush)
			r.Get("/notifications/push", s.pushStatus)
			r.Get("/notifications/stream", s.stream)
			r.Post("/notifications/{tag}/click", s.click)
		})
	})

	// Debug routes (pprof)
	if d.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		r.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
		r.Handle("/debug/pprof/block", pprof.Handler("block"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "dailyflow_up 1\n")
	fmt.Fprintf(w, "dailyflow_sessions %d\n", s.Sessions.Count())
	fmt.Fprintf(w, "dailyflow_reminders_armed %d\n", s.Sessions.Pending())
	if s.Delivery != nil {
		st := s.Delivery.Stats()
		fmt.Fprintf(w, "dailyflow_deliveries_total{outcome=\"delivered\"} %d\n", st.Delivered)
		fmt.Fprintf(w, "dailyflow_deliveries_total{outcome=\"skipped\"} %d\n", st.Skipped)
		fmt.Fprintf(w, "dailyflow_deliveries_total{outcome=\"failed\"} %d\n", st.Failed)
		fmt.Fprintf(w, "dailyflow_deliveries_total{outcome=\"dropped\"} %d\n", st.Dropped)
	}
}

type ctxKey struct{}

// authenticate accepts a bearer token, or a token query parameter for
// EventSource clients that cannot set headers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := auth.FromBearer(r.Header.Get("Authorization"))
		if !ok {
			tok = r.URL.Query().Get("token")
		}
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		userID, err := s.Auth.Verify(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// session returns the caller's session. A session created here (first
// request after a restart or expiry) is armed from the store.
func (s *Server) session(ctx context.Context, userID string) *session.Session {
	sess, created := s.Sessions.Start(userID)
	if created && sess.Reminders.Available() {
		rev := sess.Reminders.Revision()
		tasks, err := s.Repo.ListTasks(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to load tasks for new session")
			return sess
		}
		sess.Reminders.Reload(rev, tasks)
	}
	return sess
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "Server Error")
}
