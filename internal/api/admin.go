// Package api is the administrative HTTP surface: health checks and wallet
// lifecycle operations that must not be reachable from chat.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal/database"
)

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) Service {
	return Service{db: db}
}

// Mount registers all routes on the server.
func (s Service) Mount(server *Server, token string) {
	server.AppendRoute("/health", s.Health, http.MethodGet)
	server.AppendAuthorizedRoute("/admin/wallets/{npub}", token, s.Wallet, http.MethodGet)
	server.AppendAuthorizedRoute("/admin/wallets/{npub}", token, s.WipeWallet, http.MethodDelete)
}

type statusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Message string `json:"error"`
}

func RespondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = WriteResponse(w, ErrorResponse{Message: message})
}

func (s Service) Health(w http.ResponseWriter, r *http.Request) {
	_ = WriteResponse(w, statusResponse{Status: StatusOk})
}

// Wallet returns the stored configuration of one user. The sealed credential
// is excluded from serialization.
func (s Service) Wallet(w http.ResponseWriter, r *http.Request) {
	npub := mux.Vars(r)["npub"]
	cfg, err := s.db.FindWallet(npub)
	if err != nil {
		log.Errorf("[api] wallet lookup of %s failed: %v", npub, err)
		RespondError(w, http.StatusInternalServerError, "wallet lookup failed")
		return
	}
	if cfg == nil {
		RespondError(w, http.StatusNotFound, "no wallet for npub")
		return
	}
	_ = WriteResponse(w, cfg)
}

// WipeWallet removes a user's wallet configuration and gateway links. The
// next chat message starts onboarding over.
func (s Service) WipeWallet(w http.ResponseWriter, r *http.Request) {
	npub := mux.Vars(r)["npub"]
	if err := s.db.DeleteWallet(npub); err != nil {
		log.Errorf("[api] wipe of %s failed: %v", npub, err)
		RespondError(w, http.StatusInternalServerError, "wipe failed")
		return
	}
	log.Infof("[api] wiped wallet of %s", npub)
	_ = WriteResponse(w, statusResponse{Status: StatusOk})
}
