package handlers

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/middleware"
	"github.com/ispanel/backend/internal/services"
)

const (
	maxLoginAttempts = 5
	loginBlockPeriod = 15 * time.Minute
)

// LoginAttempt tracks failed login attempts
type LoginAttempt struct {
	Count     int
	LastTry   time.Time
	BlockedAt *time.Time
}

// loginGuard blocks an IP after repeated failed logins.
type loginGuard struct {
	mu       sync.Mutex
	attempts map[string]*LoginAttempt
	now      func() time.Time
}

func newLoginGuard() *loginGuard {
	return &loginGuard{attempts: map[string]*LoginAttempt{}, now: time.Now}
}

// blocked reports whether ip is blocked and for how many more minutes.
func (g *loginGuard) blocked(ip string) (bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	attempt, exists := g.attempts[ip]
	if !exists {
		return false, 0
	}
	now := g.now()
	if attempt.BlockedAt != nil {
		if elapsed := now.Sub(*attempt.BlockedAt); elapsed < loginBlockPeriod {
			return true, int((loginBlockPeriod - elapsed).Minutes()) + 1
		}
		// Block expired, reset
		delete(g.attempts, ip)
		return false, 0
	}
	if now.Sub(attempt.LastTry) > loginBlockPeriod {
		delete(g.attempts, ip)
	}
	return false, 0
}

// fail records a failed attempt and returns how many remain.
func (g *loginGuard) fail(ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	attempt, ok := g.attempts[ip]
	if !ok {
		attempt = &LoginAttempt{}
		g.attempts[ip] = attempt
	}
	attempt.Count++
	attempt.LastTry = g.now()
	if attempt.Count >= maxLoginAttempts {
		now := g.now()
		attempt.BlockedAt = &now
	}
	return maxLoginAttempts - attempt.Count
}

func (g *loginGuard) clear(ip string) {
	g.mu.Lock()
	delete(g.attempts, ip)
	g.mu.Unlock()
}

type AuthHandler struct {
	auth   *services.AuthService
	tokens *middleware.TokenIssuer
	guard  *loginGuard
	log    *zap.Logger
}

func NewAuthHandler(auth *services.AuthService, tokens *middleware.TokenIssuer, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, guard: newLoginGuard(), log: log}
}

// Login handles admin login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	clientIP := c.IP()

	// Check if IP is blocked due to too many failed attempts
	if blocked, remaining := h.guard.blocked(clientIP); blocked {
		return fail(c, fiber.StatusTooManyRequests,
			"Too many failed login attempts. Please try again in "+strconv.Itoa(remaining)+" minutes")
	}

	var req services.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	user, err := h.auth.Authenticate(c.UserContext(), req)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		remaining := h.guard.fail(clientIP)
		msg := "Invalid username or password"
		if remaining > 0 {
			msg += ". " + strconv.Itoa(remaining) + " attempts remaining"
		}
		h.log.Warn("Auth: failed login", zap.String("username", req.Username), zap.String("ip", clientIP))
		return fail(c, fiber.StatusUnauthorized, msg)
	case errors.Is(err, services.ErrAccountDisabled):
		return fail(c, fiber.StatusUnauthorized, "Account is disabled")
	case err != nil:
		return handleError(c, h.log, err)
	}

	// Clear failed attempts on successful login
	h.guard.clear(clientIP)

	token, expires, err := h.tokens.GenerateToken(user)
	if err != nil {
		return handleError(c, h.log, err)
	}
	h.log.Info("Auth: login", zap.String("username", user.Username), zap.String("ip", clientIP))

	return respond(c, fiber.Map{
		"token":      token,
		"expires_at": expires,
		"user":       user,
	}, "")
}

// Me returns the authenticated admin.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	return respond(c, user, "")
}
