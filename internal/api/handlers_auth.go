package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	ctx := r.Context()
	if existing, err := s.store.GetUserByUsername(ctx, req.Username); err != nil {
		s.serverError(w, err)
		return
	} else if existing != nil {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if existing, err := s.store.GetUserByEmail(ctx, req.Email); err != nil {
		s.serverError(w, err)
		return
	} else if existing != nil {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		s.serverError(w, err)
		return
	}

	user, err := s.store.CreateUser(ctx, req.Username, req.Email, hashed, req.FullName)
	if err != nil {
		s.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, "Register successfully", map[string]any{"user": user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if user == nil || !verifyPassword(req.Password, user.Password) {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	token, err := s.createAccessToken(user.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.log.Warn().Int64("user_id", user.ID).Err(err).Msg("touch last login failed")
	}

	writeJSON(w, http.StatusOK, "Login successfully", map[string]any{
		"user":      user,
		"api_token": token,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, err := s.extractUserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	token, err := s.createAccessToken(user.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, "Token refreshed successfully", map[string]any{
		"user":      user,
		"api_token": token,
	})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal server error")
}
