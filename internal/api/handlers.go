package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/1001054/Data-Disguise/internal/engine"
	"github.com/1001054/Data-Disguise/internal/service"
)

const (
	msgApplied   = "The policy has been applied."
	msgRecovered = "The disguise has been recovered."
	msgCleared   = "The vault has been cleared."
	msgGenerated = "The vault has been generated."
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"status": "ok"})
}

func (s *Server) generateVault(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateVault
	if !decode(w, r, &req) {
		return
	}
	v, err := s.svc.GenerateVault(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: msgGenerated, Data: v})
}

func (s *Server) vault(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Vault(r.Context(), chi.URLParam(r, "vaultID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, v)
}

func (s *Server) vaultByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		badRequest(w, "email query parameter is required")
		return
	}
	v, err := s.svc.VaultByEmail(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, v)
}

// applyPolicy wraps one of the service's policy operations.
func (s *Server) applyPolicy(fn func(context.Context, service.Requirement) (*engine.ApplyResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.Requirement
		if !decode(w, r, &req) {
			return
		}
		res, err := fn(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, MessageResponse{Message: msgApplied, Data: res})
	}
}

func (s *Server) clearVault(w http.ResponseWriter, r *http.Request) {
	var req service.Requirement
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.ClearVault(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, MessageResponse{Message: msgCleared, Data: res})
}

func (s *Server) recoverDisguise(w http.ResponseWriter, r *http.Request) {
	var req service.Requirement
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Recover(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, MessageResponse{Message: msgRecovered, Data: res})
}

func (s *Server) listDisguises(w http.ResponseWriter, r *http.Request) {
	vaultID := r.URL.Query().Get("vault_id")
	if vaultID == "" {
		badRequest(w, "vault_id query parameter is required")
		return
	}
	ds, err := s.svc.Disguises(r.Context(), vaultID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, ds)
}

func (s *Server) disguise(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Disguise(r.Context(), chi.URLParam(r, "disguiseID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, d)
}
