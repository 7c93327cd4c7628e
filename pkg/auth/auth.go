// Package auth signs users in and out and verifies session tokens.
//
// Sessions are HS256 JWTs. When accounts are configured, sign-in requires a
// password matching the account's bcrypt hash; otherwise any non-empty name
// signs in. Every sign-in and sign-out is published on StateAddress.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/fluxorio/todochaos/pkg/logstore"
)

const (
	// StateAddress carries StateEvent on the event bus
	StateAddress = "auth.state"

	EventSignIn  = "signin"
	EventSignOut = "signout"

	MsgLoginStarted = "Auth: Login attempt started"
	MsgLoginOK      = "Auth: Login successful"
	MsgLoginFailed  = "Auth: Login failed"
	MsgLogout       = "Auth: Logout"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrMissingSecret      = errors.New("auth: signing secret is required")
)

// Publisher carries auth state changes. core.EventBus satisfies it.
type Publisher interface {
	Publish(address string, body interface{}) error
}

// StateEvent is published on every sign-in and sign-out
type StateEvent struct {
	Event string `json:"event"`
	User  User   `json:"user"`
}

// Config configures an Authenticator
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// Accounts maps display names to bcrypt password hashes
	Accounts   map[string]string
	LoginRate  float64
	LoginBurst int
}

// DefaultConfig returns defaults around secret
func DefaultConfig(secret string) Config {
	return Config{
		Secret:     secret,
		Issuer:     "todochaos",
		TTL:        24 * time.Hour,
		LoginRate:  5,
		LoginBurst: 10,
	}
}

// Credentials is a sign-in request
type Credentials struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
}

// Session is the result of a successful sign-in
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims are the session token claims
type Claims struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// WithPublisher sets where state events go
func WithPublisher(p Publisher) Option {
	return func(a *Authenticator) {
		a.bus = p
	}
}

// Authenticator issues and verifies sessions
type Authenticator struct {
	cfg     Config
	secret  []byte
	log     logstore.Recorder
	bus     Publisher
	now     func() time.Time

	mu       sync.Mutex
	revoked  map[string]time.Time     // jti -> expiry
	limiters map[string]*rate.Limiter // display name -> login limiter
}

// New creates an Authenticator
func New(cfg Config, log logstore.Recorder, opts ...Option) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	defaults := DefaultConfig(cfg.Secret)
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = defaults.LoginRate
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = defaults.LoginBurst
	}
	if log == nil {
		log = logstore.Discard
	}

	a := &Authenticator{
		cfg:     cfg,
		secret:  []byte(cfg.Secret),
		log:     log,
		now:      time.Now,
		revoked:  make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Login signs a user in
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (Session, error) {
	a.log.Info(MsgLoginStarted, nil)

	session, err := a.login(ctx, creds)
	if err != nil {
		a.log.Error(MsgLoginFailed, err)
		return Session{}, err
	}

	a.log.Info(MsgLoginOK, map[string]any{"uid": session.User.UID})
	a.publish(EventSignIn, session.User)
	return session, nil
}

func (a *Authenticator) login(ctx context.Context, creds Credentials) (Session, error) {
	name := strings.TrimSpace(creds.Name)
	if !a.allow(name) {
		return Session{}, ErrRateLimited
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	if name == "" {
		return Session{}, ErrInvalidCredentials
	}
	if len(a.cfg.Accounts) > 0 {
		hash, ok := a.cfg.Accounts[name]
		if !ok {
			return Session{}, ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
			return Session{}, ErrInvalidCredentials
		}
	}

	user := NewUser(name, creds.PhotoURL)
	return a.issue(user)
}

func (a *Authenticator) issue(user User) (Session, error) {
	now := a.now()
	expires := now.Add(a.cfg.TTL)
	claims := Claims{
		Name:    user.DisplayName,
		Picture: user.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.UID,
			Issuer:    a.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: token, User: user, ExpiresAt: expires}, nil
}

// Verify returns the user of a valid, unrevoked token
func (a *Authenticator) Verify(token string) (*User, error) {
	claims, err := a.parse(token)
	if err != nil {
		return nil, err
	}
	return &User{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

func (a *Authenticator) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	a.mu.Lock()
	_, revoked := a.revoked[claims.ID]
	a.mu.Unlock()
	if revoked {
		return nil, fmt.Errorf("%w: signed out", ErrInvalidToken)
	}
	return claims, nil
}

// maxIdleLimiters bounds the limiter map before idle entries are pruned
const maxIdleLimiters = 1024

// allow spends one login attempt for name
func (a *Authenticator) allow(name string) bool {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.limiters) >= maxIdleLimiters {
		for key, l := range a.limiters {
			if l.TokensAt(now) >= float64(a.cfg.LoginBurst) {
				delete(a.limiters, key)
			}
		}
	}
	l, ok := a.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Limit(a.cfg.LoginRate), a.cfg.LoginBurst)
		a.limiters[name] = l
	}
	return l.AllowN(now, 1)
}

// Logout revokes token and announces the sign-out
func (a *Authenticator) Logout(token string) (*User, error) {
	claims, err := a.parse(token)
	if err != nil {
		return nil, err
	}

	now := a.now()
	a.mu.Lock()
	for jti, exp := range a.revoked {
		if exp.Before(now) {
			delete(a.revoked, jti)
		}
	}
	a.revoked[claims.ID] = claims.ExpiresAt.Time
	a.mu.Unlock()

	user := User{UID: claims.Subject, DisplayName: claims.Name, PhotoURL: claims.Picture}
	a.log.Info(MsgLogout, map[string]any{"uid": user.UID})
	a.publish(EventSignOut, user)
	return &user, nil
}

func (a *Authenticator) publish(event string, user User) {
	if a.bus == nil {
		return
	}
	_ = a.bus.Publish(StateAddress, StateEvent{Event: event, User: user})
}

// HashPassword returns the bcrypt hash stored in Config.Accounts
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
