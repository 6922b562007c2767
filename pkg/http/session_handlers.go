package http

import (
	"encoding/json"
	"net/http"

	"hireprep-server/pkg/auth"
	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/report"
	"hireprep-server/pkg/session"
)

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var cfg session.InterviewConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interview configuration.")
		return
	}

	id, err := s.sessions.Create(userID(r), cfg)
	if err != nil {
		s.logger.WithError(err).Error("Session creation failed")
		writeError(w, apperrors.HTTPStatusFromError(err), "Could not create session.")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Start(id); err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "Session not found.")
		case apperrors.Is(err, apperrors.ErrSessionAlreadyExist):
			writeError(w, http.StatusConflict, "Session already started.")
		case apperrors.Is(err, apperrors.ErrMediaDenied):
			writeError(w, http.StatusUnprocessableEntity, "Media capture denied or unavailable.")
		default:
			s.logger.WithError(err).WithField("session_id", id).Error("Session start failed")
			writeError(w, apperrors.HTTPStatusFromError(err), "Could not start session.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "started"})
}

func (s *Server) stopSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Stop(id); err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found.")
			return
		}
		s.logger.WithError(err).WithField("session_id", id).Error("Session stop failed")
		writeError(w, apperrors.HTTPStatusFromError(err), "Could not stop session.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "stopped"})
}

func (s *Server) sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.sessions.State(id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found.")
			return
		}
		s.logger.WithError(err).WithField("session_id", id).Error("Session state read failed")
		writeError(w, apperrors.HTTPStatusFromError(err), "Could not read session state.")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context(), userID(r))
	if err != nil {
		s.logger.WithError(err).Error("History listing failed")
		writeError(w, http.StatusInternalServerError, "Could not load history.")
		return
	}
	if records == nil {
		records = []*session.InterviewSession{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) latestHistoryHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.history.Latest(r.Context(), userID(r))
	if err != nil {
		s.logger.WithError(err).Error("History lookup failed")
		writeError(w, http.StatusInternalServerError, "Could not load history.")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "No completed interviews yet.")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) modulesHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context(), userID(r))
	if err != nil {
		s.logger.WithError(err).Error("History listing failed")
		writeError(w, http.StatusInternalServerError, "Could not load history.")
		return
	}

	modules, err := s.reports.CorrectionModules(r.Context(), records)
	if err != nil {
		// Module generation degrades to a static deck; log and serve it.
		s.logger.WithError(err).Warn("Correction module generation degraded")
	}
	if modules == nil {
		modules = []report.CorrectionModule{}
	}
	writeJSON(w, http.StatusOK, modules)
}

func (s *Server) drillsHandler(w http.ResponseWriter, r *http.Request) {
	var modules []report.CorrectionModule
	if err := json.NewDecoder(r.Body).Decode(&modules); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid module selection.")
		return
	}

	drills, err := s.reports.CorrectionDrills(r.Context(), modules)
	if err != nil {
		s.logger.WithError(err).Warn("Drill generation degraded")
	}
	if drills == nil {
		drills = []report.DrillItem{}
	}
	writeJSON(w, http.StatusOK, drills)
}

// userID extracts the authenticated account ID from the request context.
func userID(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return ""
}
