package http

import (
	"encoding/json"
	"net/http"

	apperrors "hireprep-server/pkg/errors"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	user, err := s.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrAlreadyExists):
			writeError(w, http.StatusBadRequest, "Email already exists.")
		case apperrors.Is(err, apperrors.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Email and password are required.")
		default:
			s.logger.WithError(err).Error("Registration failed")
			writeError(w, http.StatusInternalServerError, "Server error.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	result, err := s.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthenticated) {
			writeError(w, http.StatusBadRequest, "Invalid email or password.")
			return
		}
		s.logger.WithError(err).Error("Login failed")
		writeError(w, http.StatusInternalServerError, "Server error.")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
