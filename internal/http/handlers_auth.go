package http

import (
	"net/http"

	applog "estoque/internal/log"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	session, err := s.identity.SignUp(r.Context(), sanitizeInput(req.Email), req.Password, sanitizeInput(req.DisplayName))
	if err != nil {
		s.writeError(w, r, applog.OpSignUp, err)
		return
	}

	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerSessionChanged(true).
		TriggerSuccessNotification("Account created").
		JSON(session).
		Write(w)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	session, err := s.identity.SignIn(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		s.writeError(w, r, applog.OpSignIn, err)
		return
	}

	NewHTMXResponse().
		TriggerSessionChanged(true).
		JSON(session).
		Write(w)
}

// handleSignOut revokes the bearer token. Open dashboard streams of the
// session end.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.SignOut(r.Context(), BearerToken(r)); err != nil {
		s.writeError(w, r, applog.OpSignOut, err)
		return
	}

	NewHTMXResponse().
		Status(http.StatusNoContent).
		TriggerSessionChanged(false).
		Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(ownerFrom(r.Context())).Write(w)
}
