package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusauth/internal/modules/auth/domain"
)

type memUserRepo struct {
	mu      sync.RWMutex
	users   map[string]*domain.User // id -> user
	byEmail map[string]string       // email -> id
}

func NewMemUserRepo() domain.UserRepo {
	return &memUserRepo{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.CampusDays = append([]string(nil), u.CampusDays...)
	cp.Interests = append([]string(nil), u.Interests...)
	return &cp
}

func (r *memUserRepo) Create(_ context.Context, email, name string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[email]; ok {
		return nil, domain.ErrEmailTaken
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID: uuid.NewString(), Email: email, Name: name, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	r.users[u.ID] = u
	r.byEmail[email] = u.ID
	return copyUser(u), nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(r.users[id]), nil
}

func (r *memUserRepo) update(id string, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memUserRepo) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		now := time.Now().UTC()
		u.EmailVerified = true
		u.LastLoginAt = &now
	})
}

func (r *memUserRepo) SetVerifiedName(_ context.Context, id, name string) error {
	return r.update(id, func(u *domain.User) {
		u.Name = name
		u.NameVerified = true
	})
}

func (r *memUserRepo) UpdateProfile(_ context.Context, id string, p domain.ProfileUpdate) error {
	return r.update(id, func(u *domain.User) {
		if p.Program != nil {
			u.Program = p.Program
		}
		if p.Bio != nil {
			u.Bio = p.Bio
		}
		if p.AvatarURL != nil {
			u.AvatarURL = p.AvatarURL
		}
		if p.CampusDays != nil {
			u.CampusDays = append([]string(nil), (*p.CampusDays)...)
		}
		if p.Interests != nil {
			u.Interests = append([]string(nil), (*p.Interests)...)
		}
	})
}

// SetBanned flips the ban flag of a user held in a memory repo.
func SetBanned(repo domain.UserRepo, id string, banned bool) error {
	r, ok := repo.(*memUserRepo)
	if !ok {
		return domain.ErrNotFound
	}
	return r.update(id, func(u *domain.User) { u.IsBanned = banned })
}

type memSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	byUser   map[string][]string
}

func NewMemSessionRepo() domain.SessionRepo {
	return &memSessionRepo{
		sessions: make(map[string]*domain.Session),
		byUser:   make(map[string][]string),
	}
}

func (r *memSessionRepo) Create(_ context.Context, s domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.LastActive = now
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(30 * 24 * time.Hour)
	}
	cp := s
	r.sessions[s.ID] = &cp
	r.byUser[s.UserID] = append(r.byUser[s.UserID], s.ID)
	return &s, nil
}

func (r *memSessionRepo) FindByRefreshHash(_ context.Context, hash string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.RefreshTokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListByUser pages through sessions newest first.
func (r *memSessionRepo) ListByUser(_ context.Context, userID string, page, limit int) ([]domain.Session, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Session, 0, len(r.byUser[userID]))
	for _, id := range r.byUser[userID] {
		all = append(all, *r.sessions[id])
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []domain.Session{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *memSessionRepo) Revoke(_ context.Context, sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return domain.ErrNotFound
	}
	if s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (r *memSessionRepo) RevokeAll(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for _, id := range r.byUser[userID] {
		if s, ok := r.sessions[id]; ok && s.RevokedAt == nil {
			s.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

type memCodeRepo struct {
	mu       sync.Mutex
	codes    map[string]domain.VerificationCode // email -> outstanding code
	lastSent map[string]time.Time
	usedJTI  map[string]time.Time // jti -> forget after
	cooldown time.Duration
	now      func() time.Time
}

func NewMemCodeRepo(cooldown time.Duration) domain.CodeRepo {
	return &memCodeRepo{
		codes:    map[string]domain.VerificationCode{},
		lastSent: map[string]time.Time{},
		usedJTI:  map[string]time.Time{},
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *memCodeRepo) Save(_ context.Context, c domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	r.codes[c.Email] = c
	r.lastSent[c.Email] = now
	return nil
}

func (r *memCodeRepo) Consume(_ context.Context, email string, match func(string) bool) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[email]
	if !ok || !match(c.CodeHash) {
		return nil, domain.ErrCodeInvalid
	}
	if r.now().After(c.ExpiresAt) {
		delete(r.codes, email)
		return nil, domain.ErrCodeExpired
	}
	delete(r.codes, email)
	return &c, nil
}

func (r *memCodeRepo) ConsumeAttempt(_ context.Context, email, attemptID string) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[email]
	if !ok || c.ID != attemptID {
		return nil, domain.ErrCodeInvalid
	}
	delete(r.codes, email)
	if r.now().After(c.ExpiresAt) {
		return nil, domain.ErrCodeExpired
	}
	return &c, nil
}

func (r *memCodeRepo) ResendAllowed(_ context.Context, email string) (bool, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastSent[email]
	if !ok {
		return true, 0, nil
	}
	left := r.cooldown - r.now().Sub(last)
	if left <= 0 {
		return true, 0, nil
	}
	return false, left, nil
}

func (r *memCodeRepo) ConsumeToken(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, until := range r.usedJTI {
		if now.After(until) {
			delete(r.usedJTI, k)
		}
	}
	if _, used := r.usedJTI[jti]; used {
		return false, nil
	}
	r.usedJTI[jti] = now.Add(ttl)
	return true, nil
}
