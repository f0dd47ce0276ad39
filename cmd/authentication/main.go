// This is a **mock authentication service**, designed to provide JWT tokens
// for the policy service, simulating user authentication.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/auth"
	"github.com/gartstein/insurecrm/internal/policy/db"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPort   = "8081"       // Default port for the authentication service
	defaultSecret = "jwt_secret" // Secret for signing JWT
)

// TokenResponse represents the response structure
type TokenResponse struct {
	Token string `json:"token"`
}

type tokenIssuer struct {
	secret string
	logger *zap.Logger
}

// tokenHandler issues a token for the requested user. Without parameters it
// signs in as the demo agency manager.
func (i *tokenIssuer) tokenHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID, err := uuidParam(q.Get("userId"), db.DemoManagerID)
	if err != nil {
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}
	agencyID, err := uuidParam(q.Get("agencyId"), db.DemoAgencyID)
	if err != nil {
		http.Error(w, "invalid agencyId", http.StatusBadRequest)
		return
	}
	role := models.RoleAgencyManager
	if raw := q.Get("role"); raw != "" {
		role = models.UserRole(raw)
	}
	if !role.Valid() {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	token, err := auth.GenerateToken(userID, agencyID, role, i.secret)
	if err != nil {
		i.logger.Error("failed to generate token", zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(TokenResponse{Token: token}); err != nil {
		i.logger.Error("failed to encode token", zap.Error(err))
	}
}

func uuidParam(raw string, fallback uuid.UUID) (uuid.UUID, error) {
	if raw == "" {
		return fallback, nil
	}
	return uuid.Parse(raw)
}

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = defaultSecret
	}
	port := os.Getenv("AUTH_PORT")
	if port == "" {
		port = defaultPort
	}

	issuer := &tokenIssuer{secret: secret, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", issuer.tokenHandler)

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("Authentication service running", zap.String("port", port))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("authentication service stopped", zap.Error(err))
	}
}
