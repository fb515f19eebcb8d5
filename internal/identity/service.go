package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"estoque/internal/cache"
	"estoque/internal/core"
	applog "estoque/internal/log"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultWatchInterval = 30 * time.Second
	ownerCacheSize       = 1024
	ownerCacheTTL        = 5 * time.Minute
)

// Config holds the identity service settings.
type Config struct {
	Secret []byte
	// SessionTTL is the lifetime of issued tokens.
	SessionTTL time.Duration
	// WatchInterval is how often a watched session is re-checked against
	// the revocation list, catching sign-outs made on other instances.
	WatchInterval time.Duration
	BcryptCost    int
}

// Service is the identity provider: it registers owners, issues and revokes
// session tokens and resolves a token to its owner.
type Service struct {
	users   UserRepository
	revoked RevocationList
	tokens  tokenIssuer
	owners  *cache.LRUCache[core.Owner]
	cfg     Config
	logger  *applog.Logger
	now     func() time.Time

	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	signedOut chan struct{}
	once      sync.Once
}

func (w *watcher) signOut() {
	w.once.Do(func() { close(w.signedOut) })
}

// NewService creates the identity service. A nil revocation list keeps
// revocations in memory.
func NewService(users UserRepository, revoked RevocationList, cfg Config, logger *applog.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("identity: signing secret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Service{
		users:    users,
		revoked:  revoked,
		tokens:   tokenIssuer{secret: cfg.Secret, ttl: cfg.SessionTTL},
		owners:   cache.NewLRUCache[core.Owner](ownerCacheSize, ownerCacheTTL),
		cfg:      cfg,
		logger:   logger.WithComponent(applog.ComponentIdentity),
		now:      time.Now,
		watchers: make(map[string]map[*watcher]struct{}),
	}, nil
}

// OwnerCache exposes the owner cache for periodic cleanup.
func (s *Service) OwnerCache() cache.Cleaner {
	return s.owners
}

// SignUp registers a new owner and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if err := validationError(signUpInput{Email: email, Password: password, DisplayName: displayName}); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		Owner: core.Owner{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: displayName,
			CreatedAt:   s.now().UTC(),
		},
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return Session{}, core.NewAuthError(core.AuthEmailInUse, nil)
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "Owner signed up",
		applog.FieldOwnerID, u.ID,
		applog.FieldOperation, applog.OpSignUp)

	s.owners.Set(u.ID, u.Owner)
	return s.newSession(u.Owner)
}

// SignIn checks the credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := validationError(signInInput{Email: email, Password: password}); err != nil {
		return Session{}, err
	}

	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, core.NewAuthError(core.AuthInvalidCredentials, nil)
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Session{}, core.NewAuthError(core.AuthInvalidCredentials, nil)
		}
		return Session{}, fmt.Errorf("compare password: %w", err)
	}

	s.logger.InfoContext(ctx, "Owner signed in",
		applog.FieldOwnerID, u.ID,
		applog.FieldOperation, applog.OpSignIn)

	s.owners.Set(u.ID, u.Owner)
	return s.newSession(u.Owner)
}

func (s *Service) newSession(owner core.Owner) (Session, error) {
	token, claims, err := s.tokens.issue(owner.ID, s.now())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Owner: owner, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignOut revokes the session. Watchers of it observe a nil owner.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.parse(token, s.now())
	if err != nil {
		return core.NewAuthError(core.AuthUnauthenticated, err)
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.mu.Lock()
	for w := range s.watchers[claims.ID] {
		w.signOut()
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Owner signed out",
		applog.FieldOwnerID, claims.Subject,
		applog.FieldOperation, applog.OpSignOut)
	return nil
}

// Authenticate resolves a token to its owner.
func (s *Service) Authenticate(ctx context.Context, token string) (core.Owner, error) {
	owner, _, err := s.authenticate(ctx, token)
	return owner, err
}

func (s *Service) authenticate(ctx context.Context, token string) (core.Owner, tokenClaims, error) {
	if token == "" {
		return core.Owner{}, tokenClaims{}, core.NewAuthError(core.AuthUnauthenticated, nil)
	}
	claims, err := s.tokens.parse(token, s.now())
	if err != nil {
		return core.Owner{}, tokenClaims{}, core.NewAuthError(core.AuthUnauthenticated, err)
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return core.Owner{}, tokenClaims{}, fmt.Errorf("check session: %w", err)
	}
	if revoked {
		return core.Owner{}, tokenClaims{}, core.NewAuthError(core.AuthUnauthenticated, errors.New("session signed out"))
	}

	owner, err := s.owner(ctx, claims.Subject)
	if err != nil {
		return core.Owner{}, tokenClaims{}, err
	}
	return owner, claims, nil
}

func (s *Service) owner(ctx context.Context, id string) (core.Owner, error) {
	if owner, ok := s.owners.Get(id); ok {
		return owner, nil
	}
	u, err := s.users.UserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return core.Owner{}, core.NewAuthError(core.AuthUnauthenticated, err)
	}
	if err != nil {
		return core.Owner{}, fmt.Errorf("find owner: %w", err)
	}
	s.owners.Set(id, u.Owner)
	return u.Owner, nil
}

// Watch emits the owner bound to token, then nil once the session is signed
// out or expires, then closes. The returned stop function (or cancelling
// ctx) closes the channel without emitting nil.
func (s *Service) Watch(ctx context.Context, token string) (<-chan *core.Owner, func(), error) {
	owner, claims, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	w := &watcher{signedOut: make(chan struct{})}
	s.mu.Lock()
	if s.watchers[claims.ID] == nil {
		s.watchers[claims.ID] = make(map[*watcher]struct{})
	}
	s.watchers[claims.ID][w] = struct{}{}
	s.mu.Unlock()

	ch := make(chan *core.Owner, 2)
	ch <- &owner

	stop := make(chan struct{})
	var stopOnce sync.Once
	stopFn := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer close(ch)
		defer s.removeWatcher(claims.ID, w)

		expiry := time.NewTimer(claims.ExpiresAt.Time.Sub(s.now()))
		defer expiry.Stop()
		ticker := time.NewTicker(s.cfg.WatchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-w.signedOut:
				ch <- nil
				return
			case <-expiry.C:
				ch <- nil
				return
			case <-ticker.C:
				revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
				if err != nil {
					s.logger.WarnContext(ctx, "Failed to re-check session", applog.FieldError, err)
					continue
				}
				if revoked {
					ch <- nil
					return
				}
			}
		}
	}()

	return ch, stopFn, nil
}

func (s *Service) removeWatcher(tokenID string, w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers[tokenID], w)
	if len(s.watchers[tokenID]) == 0 {
		delete(s.watchers, tokenID)
	}
}
