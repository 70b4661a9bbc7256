package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BTreeMap/Insura/internal/models"
)

const adminIssuer = "insura"

// NewAdminToken signs an HS256 token accepted by the admin endpoints.
func NewAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    adminIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// authMiddleware rejects requests without a valid bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("missing authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("invalid authorization header format"))
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(adminIssuer))
		if err != nil {
			slog.Debug("Server.authMiddleware: token rejected", "path", r.URL.Path, "error", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("token expired"))
			} else {
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("invalid token"))
			}
			return
		}
		slog.Debug("Server.authMiddleware: authorized", "subject", claims.Subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
