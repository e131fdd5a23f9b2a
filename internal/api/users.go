package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dailyflow/internal/auth"
	"dailyflow/internal/domain"
	"dailyflow/internal/store"
)

type registerReq struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResp struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := auth.CheckStrength(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters and contain uppercase, lowercase, and number")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		serverError(w, r, err)
		return
	}
	u, err := s.Repo.CreateUser(r.Context(), domain.User{FullName: strings.TrimSpace(req.FullName), Email: req.Email, PasswordHash: hash})
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	tok, err := s.Auth.Issue(u.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	s.session(r.Context(), u.ID)
	writeJSON(w, http.StatusCreated, authResp{Message: "User registered successfully", Token: tok, User: u})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}
	u, err := s.Repo.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	if err := auth.ComparePassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	tok, err := s.Auth.Issue(u.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	s.session(r.Context(), u.ID)
	writeJSON(w, http.StatusOK, authResp{Message: "Login successful", Token: tok, User: u})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.End(callerID(r))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	u, err := s.Repo.GetUser(r.Context(), callerID(r))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

type profileReq struct {
	FullName   string `json:"fullName"`
	Profession string `json:"profession"`
	Bio        string `json:"bio"`
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "Full name is required")
		return
	}
	u, err := s.Repo.UpdateUser(r.Context(), domain.User{
		ID:         callerID(r),
		FullName:   strings.TrimSpace(req.FullName),
		Profession: strings.TrimSpace(req.Profession),
		Bio:        strings.TrimSpace(req.Bio),
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": u})
}

type passwordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if err := auth.CheckStrength(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters and contain uppercase, lowercase, and number")
		return
	}
	uid := callerID(r)
	u, err := s.Repo.GetUser(r.Context(), uid)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	if auth.ComparePassword(u.PasswordHash, req.CurrentPassword) != nil {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if auth.ComparePassword(u.PasswordHash, req.NewPassword) == nil {
		writeError(w, http.StatusBadRequest, "New password must be different from current password")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if err := s.Repo.UpdatePassword(r.Context(), uid, hash); err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}
