package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"CallBox/core/auth"
	"CallBox/logger"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// Authenticator guards the API with a single admin password.
type Authenticator struct {
	signer       *auth.Signer
	passwordHash string
}

// NewAuthenticator returns nil when secret or hash is empty, which disables auth.
func NewAuthenticator(secret, passwordHash string, ttl time.Duration) *Authenticator {
	if secret == "" || passwordHash == "" {
		return nil
	}
	return &Authenticator{signer: auth.NewSigner(secret, ttl), passwordHash: passwordHash}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginHandler exchanges the admin password for a bearer token.
func (a *Authenticator) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a == nil {
		http.Error(w, "Authentication is disabled", http.StatusNotFound)
		return
	}
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("[Login] 解析请求体失败", logger.ErrorField(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}
	if !auth.VerifyPassword(req.Password, a.passwordHash) {
		logger.Warn("[Login] 密码验证失败", logger.String("remote", r.RemoteAddr))
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, expires, err := a.signer.GenerateToken("admin")
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	logger.Info("[Login] 登录成功", logger.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresAt": expires.UnixMilli(),
	})
}

// bearerToken 从 Authorization 头读取，websocket 连接可以用 ?token=
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}

// Middleware rejects requests without a valid token. A nil Authenticator
// lets every request through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}
		claims, err := a.signer.ParseToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				http.Error(w, "Token has expired", http.StatusUnauthorized)
				return
			}
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
