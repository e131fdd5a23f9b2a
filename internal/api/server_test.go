package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dailyflow/internal/auth"
	"dailyflow/internal/domain"
	"dailyflow/internal/mail"
	"dailyflow/internal/notify"
	"dailyflow/internal/reminder"
	"dailyflow/internal/session"
	"dailyflow/internal/store"
	"dailyflow/internal/testutil"
)

var epoch = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu  sync.Mutex
	due []domain.DueReminder
}

func (r *recorder) Deliver(d domain.DueReminder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.due = append(r.due, d)
}

func (r *recorder) fired() []domain.DueReminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DueReminder(nil), r.due...)
}

type testEnv struct {
	h         http.Handler
	clk       *testutil.FakeClock
	sink      *recorder
	hub       *notify.Hub
	sessions  *session.Manager
	transport *testutil.FakeTransport
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	clk := testutil.NewFakeClock(epoch)
	sink := &recorder{}
	hub := notify.NewHub()
	sessions := session.NewManager(
		session.Schedulers(true, sink, reminder.WithClock(clk)),
		func(uid string) *notify.Presenter {
			return notify.NewPresenter(hub.Runtime(uid), notify.Options{Clock: clk, Location: time.UTC})
		},
		clk,
	)
	ft := &testutil.FakeTransport{}
	ms, err := mail.New(mail.Config{Host: "smtp.example.com", User: "reminders@example.com", Password: "pw", Location: time.UTC}, ft)
	if err != nil {
		t.Fatalf("mail.New: %v", err)
	}
	h := NewServer(Deps{
		Repo:     store.NewSQLiteRepo(db),
		Auth:     auth.NewManager("test-secret", time.Hour),
		Sessions: sessions,
		Hub:      hub,
		Mail:     ms,
		Location: time.UTC,
		Clock:    clk,
	})
	return &testEnv{h: h, clk: clk, sink: sink, hub: hub, sessions: sessions, transport: ft}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) register(t *testing.T, name, email string) (token, id string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": name, "email": email, "password": "Secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[authResp](t, rec)
	return resp.Token, resp.User.ID
}

type taskResp struct {
	Message string      `json:"message"`
	Task    domain.Task `json:"task"`
}

func (e *testEnv) createTask(t *testing.T, token, title string, start time.Time, lead int) domain.Task {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/tasks", token, map[string]any{
		"title":     title,
		"startTime": start,
		"endTime":   start.Add(time.Hour),
		"priority":  "High",
		"reminder":  map[string]any{"enabled": true, "minutesBefore": lead},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", rec.Code, rec.Body.String())
	}
	return decode[taskResp](t, rec).Task
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	if rec := e.do(t, http.MethodGet, "/health", "", nil); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
	rec := e.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), "dailyflow_sessions 0") {
		t.Fatalf("metrics: %s", rec.Body.String())
	}
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.register(t, "Ana", "ana@example.com")

	if rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Ana", "email": "ANA@example.com", "password": "Secret1",
	}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Weak", "email": "weak@example.com", "password": "secret",
	}); rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "Wrong1",
	}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "Secret1",
	}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "Secret1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	login := decode[authResp](t, rec)

	rec = e.do(t, http.MethodGet, "/api/user/profile", login.Token, nil)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("profile: %d %s", rec.Code, rec.Body.String())
	}

	if rec := e.do(t, http.MethodGet, "/api/tasks", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/tasks", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}

	if rec := e.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if _, ok := e.sessions.Get(login.User.ID); ok {
		t.Fatal("session survived logout")
	}
}

func TestProfileAndPasswordUpdate(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token, _ := e.register(t, "Ana", "ana@example.com")

	if rec := e.do(t, http.MethodPut, "/api/user/profile", token, map[string]string{"fullName": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: %d", rec.Code)
	}
	rec := e.do(t, http.MethodPut, "/api/user/profile", token, map[string]string{
		"fullName": " Ana Rahman ", "profession": "Designer", "bio": " likes lists ",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodGet, "/api/user/profile", token, nil)
	u := decode[struct{ User domain.User }](t, rec).User
	if u.FullName != "Ana Rahman" || u.Profession != "Designer" || u.Bio != "likes lists" || u.Email != "ana@example.com" {
		t.Fatalf("profile = %+v", u)
	}

	for name, tc := range map[string]struct {
		body map[string]string
		code int
	}{
		"missing":   {map[string]string{"currentPassword": "Secret1"}, http.StatusBadRequest},
		"weak":      {map[string]string{"currentPassword": "Secret1", "newPassword": "abc"}, http.StatusBadRequest},
		"wrong":     {map[string]string{"currentPassword": "Wrong1", "newPassword": "Better2"}, http.StatusBadRequest},
		"unchanged": {map[string]string{"currentPassword": "Secret1", "newPassword": "Secret1"}, http.StatusBadRequest},
	} {
		if rec := e.do(t, http.MethodPut, "/api/user/password", token, tc.body); rec.Code != tc.code {
			t.Errorf("%s: %d %s, want %d", name, rec.Code, rec.Body.String(), tc.code)
		}
	}
	rec = e.do(t, http.MethodPut, "/api/user/password", token, map[string]string{"currentPassword": "Secret1", "newPassword": "Better2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: %d %s", rec.Code, rec.Body.String())
	}
	login := func(pw string) int {
		return e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": pw}).Code
	}
	if login("Secret1") != http.StatusUnauthorized || login("Better2") != http.StatusOK {
		t.Fatal("login did not follow the password change")
	}
}

func TestTaskLifecycleArmsReminders(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token, uid := e.register(t, "Ana", "ana@example.com")

	standup := e.createTask(t, token, "Standup", epoch.Add(2*time.Hour), 30)
	review := e.createTask(t, token, "Review", epoch.Add(4*time.Hour), 15)

	rec := e.do(t, http.MethodGet, "/api/reminders", token, nil)
	rem := decode[remindersResp](t, rec)
	if !rem.Available || len(rem.Entries) != 2 {
		t.Fatalf("reminders = %+v", rem)
	}
	if rem.Entries[0].TaskID != standup.ID || !rem.Entries[0].FireAt.Equal(epoch.Add(90*time.Minute)) {
		t.Fatalf("first entry = %+v", rem.Entries[0])
	}

	// Completing a task disarms it.
	rec = e.do(t, http.MethodPut, "/api/tasks/"+review.ID, token, map[string]any{"completed": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}
	if rem := decode[remindersResp](t, e.do(t, http.MethodGet, "/api/reminders", token, nil)); len(rem.Entries) != 1 {
		t.Fatalf("entries after complete = %+v", rem.Entries)
	}

	e.clk.Advance(90 * time.Minute)
	fired := e.sink.fired()
	if len(fired) != 1 || fired[0].UserID != uid || fired[0].Task.Title != "Standup" {
		t.Fatalf("fired = %+v", fired)
	}

	rec = e.do(t, http.MethodGet, "/api/tasks", token, nil)
	list := decode[struct {
		Tasks []domain.Task `json:"tasks"`
	}](t, rec)
	if len(list.Tasks) != 2 || list.Tasks[0].ID != standup.ID {
		t.Fatalf("list = %+v", list.Tasks)
	}

	if rec := e.do(t, http.MethodDelete, "/api/tasks/"+standup.ID, token, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/tasks/"+standup.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", rec.Code)
	}
}

func TestRescheduleRearmsAtNewTime(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token, _ := e.register(t, "Ana", "ana@example.com")
	tk := e.createTask(t, token, "Gym", epoch.Add(time.Hour), 10)

	rec := e.do(t, http.MethodPut, "/api/tasks/"+tk.ID, token, map[string]any{
		"startTime": epoch.Add(3 * time.Hour),
		"endTime":   epoch.Add(4 * time.Hour),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	rem := decode[remindersResp](t, e.do(t, http.MethodGet, "/api/reminders", token, nil))
	if len(rem.Entries) != 1 || !rem.Entries[0].FireAt.Equal(epoch.Add(170*time.Minute)) {
		t.Fatalf("entries = %+v", rem.Entries)
	}
}

func TestTaskValidationAndOwnership(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice, _ := e.register(t, "Alice", "alice@example.com")
	bob, _ := e.register(t, "Bob", "bob@example.com")

	rec := e.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{
		"title": "Backwards", "startTime": epoch.Add(time.Hour), "endTime": epoch,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("backwards task: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{"title": "No times"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing times: %d", rec.Code)
	}

	tk := e.createTask(t, alice, "Private", epoch.Add(time.Hour), 5)
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if rec := e.do(t, method, "/api/tasks/"+tk.ID, bob, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s as other user: %d", method, rec.Code)
		}
	}
	if rec := e.do(t, http.MethodPut, "/api/tasks/"+tk.ID, bob, map[string]any{"title": "mine"}); rec.Code != http.StatusNotFound {
		t.Fatalf("PUT as other user: %d", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token, _ := e.register(t, "Ana", "ana@example.com")
	e.createTask(t, token, "Later today", epoch.Add(2*time.Hour), 5)
	e.createTask(t, token, "Tomorrow", epoch.Add(26*time.Hour), 5)

	s := decode[domain.Summary](t, e.do(t, http.MethodGet, "/api/tasks/summary", token, nil))
	if s.Total != 2 || len(s.Today) != 1 || len(s.Upcoming) != 2 || s.PendingCount != 2 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestSendEmail(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token, _ := e.register(t, "Ana", "ana@example.com")

	if rec := e.do(t, http.MethodPost, "/api/notifications/email", token, map[string]any{"taskTitle": "x"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing start: %d", rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/api/notifications/email", token, map[string]any{
		"taskTitle": "Dentist", "startTime": epoch.Add(time.Hour),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}
	msgs := e.transport.Messages()
	if len(msgs) != 1 || msgs[0].To != "ana@example.com" || msgs[0].Subject != "⏰ Task Reminder: Dentist" {
		t.Fatalf("messages = %+v", msgs)
	}

	status := decode[struct {
		EmailService mailStatus `json:"emailService"`
	}](t, e.do(t, http.MethodGet, "/api/notifications/email", token, nil))
	if !status.EmailService.Connected || status.EmailService.User != "rem***" {
		t.Fatalf("status = %+v", status.EmailService)
	}
}

func TestStreamReceivesPushAndClick(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token, uid := e.register(t, "Ana", "ana@example.com")
	ts := httptest.NewServer(e.h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/notifications/stream?permission=granted&token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	for e.hub.Subscribers(uid) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	rec := e.do(t, http.MethodPost, "/api/notifications/push", token, map[string]string{
		"title": "Task Reminder", "body": "hello", "taskId": "tsk_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("push: %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodPost, "/api/notifications/task-reminder-tsk_1/click", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("click: %d", rec.Code)
	}

	var types []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() && len(types) < 3 {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			types = append(types, strings.TrimPrefix(line, "event: "))
		}
	}
	if strings.Join(types, ",") != "show,focus,close" {
		t.Fatalf("events = %v", types)
	}
}
