package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminPassFile    = "admin_pass.hash" // stored in the data dir
	sessionCookieKey = "mushgames_admin"
	sessionMaxAge    = 24 * time.Hour
	minPasswordLen   = 8
)

// adminAuth manages operator logins. With no configured password and no
// stored hash every login fails.
type adminAuth struct {
	mu       sync.RWMutex
	dataDir  string
	envPass  string
	hash     []byte // set when there is no data dir to store it in
	clock    clockwork.Clock
	sessions map[string]time.Time
}

func newAdminAuth(dataDir, envPass string, clock clockwork.Clock) *adminAuth {
	aa := &adminAuth{
		dataDir:  dataDir,
		envPass:  envPass,
		clock:    clock,
		sessions: make(map[string]time.Time),
	}
	if !aa.configured() {
		log.Printf("admin: no password configured, operator logins are disabled")
	}
	return aa
}

func (aa *adminAuth) storedHash() []byte {
	if aa.hash != nil {
		return aa.hash
	}
	if aa.dataDir == "" {
		return nil
	}
	hash, err := os.ReadFile(filepath.Join(aa.dataDir, adminPassFile))
	if err != nil {
		return nil
	}
	return hash
}

func (aa *adminAuth) configured() bool {
	return aa.envPass != "" || aa.storedHash() != nil
}

// checkPassword verifies a password. The configured password wins over
// the stored hash.
func (aa *adminAuth) checkPassword(password string) bool {
	aa.mu.RLock()
	defer aa.mu.RUnlock()

	if aa.envPass != "" {
		return subtle.ConstantTimeCompare([]byte(password), []byte(aa.envPass)) == 1
	}
	if hash := aa.storedHash(); hash != nil {
		return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	}
	return false
}

// changePassword stores a new bcrypt hash.
func (aa *adminAuth) changePassword(newPassword string) error {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if aa.dataDir == "" {
		aa.hash = hash
		return nil
	}
	return os.WriteFile(filepath.Join(aa.dataDir, adminPassFile), hash, 0600)
}

func (aa *adminAuth) createSession() string {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	now := aa.clock.Now()
	for tok, exp := range aa.sessions {
		if now.After(exp) {
			delete(aa.sessions, tok)
		}
	}

	b := make([]byte, 32)
	rand.Read(b)
	token := hex.EncodeToString(b)
	aa.sessions[token] = now.Add(sessionMaxAge)
	return token
}

func (aa *adminAuth) validateSession(token string) bool {
	aa.mu.RLock()
	defer aa.mu.RUnlock()

	exp, ok := aa.sessions[token]
	return ok && aa.clock.Now().Before(exp)
}

func (aa *adminAuth) invalidateSession(token string) {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	delete(aa.sessions, token)
}

func requestToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieKey); err == nil {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// authMiddleware requires a session for everything but the auth endpoints.
func (a *Admin) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/auth/") {
			next.ServeHTTP(w, r)
			return
		}
		if tok := requestToken(r); tok != "" && a.auth.validateSession(tok) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "authentication required")
	})
}

func (a *Admin) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !a.auth.checkPassword(req.Password) {
		log.Printf("admin: failed login attempt from %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token := a.auth.createSession()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieKey,
		Value:    token,
		Path:     "/admin/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	log.Printf("admin: successful login from %s", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "token": token})
}

func (a *Admin) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if tok := requestToken(r); tok != "" {
		a.auth.invalidateSession(tok)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieKey,
		Value:    "",
		Path:     "/admin/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (a *Admin) handleAuthChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current"`
		New     string `json:"new"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !a.auth.checkPassword(req.Current) {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if len(req.New) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}
	if err := a.auth.changePassword(req.New); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save password: "+err.Error())
		return
	}
	log.Printf("admin: password changed from %s", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}
