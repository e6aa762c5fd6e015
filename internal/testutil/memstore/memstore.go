// Package memstore is an in-memory stand-in for the Postgres repository,
// returning the same sentinel errors.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/rbac"
	"github.com/promotrack/promotrack/internal/repository"
)

// Store mirrors the repository's behaviour for users, servers, promotions and
// clicks. A single mutex stands in for the transactional guarantees.
type Store struct {
	mu         sync.Mutex
	users      map[string]*model.User
	userRoles  map[string][]string
	servers    map[string]*model.Server
	promotions map[string]*model.Promotion
	clicks     map[string]*model.Click
	order      []string

	// Err, when set, is returned from every call.
	Err error
	// Lookups counts GetPromotionByCode calls.
	Lookups int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[string]*model.User),
		userRoles:  make(map[string][]string),
		servers:    make(map[string]*model.Server),
		promotions: make(map[string]*model.Promotion),
		clicks:     make(map[string]*model.Click),
	}
}

// Permissions granted by each seeded role.
var rolePermissions = map[string][]string{
	model.RoleSuperAdmin:  {},
	model.RoleAdmin:       {"users.view", "servers.view", "promotions.view", "clicks.convert", "fraud.view", "audit.view", "health.view"},
	model.RoleModerator:   {"servers.view", "promotions.view", "fraud.view"},
	model.RoleServerOwner: {"servers.view", "promotions.view"},
	model.RoleUser:        {"promotions.view"},
}

func (s *Store) CreateUser(_ context.Context, user *model.User, roles ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	for _, u := range s.users {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailExists
		}
	}
	for _, role := range roles {
		if _, ok := rolePermissions[role]; !ok {
			return repository.ErrRoleNotFound
		}
	}

	copied := *user
	s.users[user.ID] = &copied
	s.userRoles[user.ID] = append([]string(nil), roles...)
	return nil
}

func (s *Store) AssignRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return repository.ErrUserNotFound
	}
	if _, ok := rolePermissions[role]; !ok {
		return repository.ErrRoleNotFound
	}
	for _, r := range s.userRoles[userID] {
		if r == role {
			return nil
		}
	}
	s.userRoles[userID] = append(s.userRoles[userID], role)
	return nil
}

func (s *Store) SetUserActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *Store) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Username == login || u.Email == strings.ToLower(login) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) UserActive(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return false, repository.ErrUserNotFound
	}
	return u.IsActive, nil
}

func (s *Store) GetIdentity(_ context.Context, userID string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	identity := &model.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		IsActive:    u.IsActive,
		Roles:       []model.Role{},
		Permissions: []string{},
	}
	seen := make(map[string]bool)
	for _, role := range s.userRoles[userID] {
		identity.Roles = append(identity.Roles, model.Role{Name: role, Level: model.LevelForRole(role)})
		for _, p := range rolePermissions[role] {
			if !seen[p] {
				seen[p] = true
				identity.Permissions = append(identity.Permissions, p)
			}
		}
	}
	return identity, nil
}

func (s *Store) CreateServer(_ context.Context, server *model.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	copied := *server
	s.servers[server.ID] = &copied
	return nil
}

func (s *Store) GetServerByID(_ context.Context, id string) (*model.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.servers[id]
	if !ok {
		return nil, repository.ErrServerNotFound
	}
	copied := *server
	return &copied, nil
}

func (s *Store) CreatePromotion(_ context.Context, p *model.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, existing := range s.promotions {
		if existing.Code == p.Code {
			return repository.ErrCodeExists
		}
	}
	copied := *p
	s.promotions[p.ID] = &copied
	return nil
}

func (s *Store) GetPromotionByCode(_ context.Context, code string) (*model.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	if s.Err != nil {
		return nil, s.Err
	}
	for _, p := range s.promotions {
		if p.Code == code {
			return s.withWebsite(p), nil
		}
	}
	return nil, repository.ErrPromotionNotFound
}

func (s *Store) GetPromotionByID(_ context.Context, id string) (*model.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.promotions[id]
	if !ok {
		return nil, repository.ErrPromotionNotFound
	}
	return s.withWebsite(p), nil
}

func (s *Store) withWebsite(p *model.Promotion) *model.Promotion {
	copied := *p
	if server, ok := s.servers[p.ServerID]; ok {
		copied.ServerWebsite = server.Website
	}
	return &copied
}

func (s *Store) UpdatePromotionStatus(_ context.Context, id string, status model.PromotionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[id]
	if !ok {
		return repository.ErrPromotionNotFound
	}
	p.Status = status
	return nil
}

func (s *Store) ServerOwner(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	server, ok := s.servers[id]
	if !ok {
		return "", fmt.Errorf("%w: %w", repository.ErrServerNotFound, rbac.ErrResourceNotFound)
	}
	return server.OwnerID, nil
}

func (s *Store) PromotionOwner(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	p, ok := s.promotions[id]
	if !ok {
		return "", fmt.Errorf("%w: %w", repository.ErrPromotionNotFound, rbac.ErrResourceNotFound)
	}
	return p.UserID, nil
}

func (s *Store) RecordClick(_ context.Context, click *model.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	p, ok := s.promotions[click.PromotionID]
	if !ok {
		return repository.ErrPromotionNotFound
	}

	since := click.CreatedAt.Add(-model.UniqueLookback)
	click.IsUnique = true
	for _, prior := range s.clicks {
		if prior.PromotionID != click.PromotionID || !prior.CreatedAt.After(since) {
			continue
		}
		if click.Fingerprint != "" && prior.Fingerprint == click.Fingerprint {
			click.IsUnique = false
			break
		}
		if click.Fingerprint == "" && prior.VisitorIP == click.VisitorIP {
			click.IsUnique = false
			break
		}
	}

	copied := *click
	copied.UTMParams = maps.Clone(click.UTMParams)
	s.clicks[click.ID] = &copied
	s.order = append(s.order, click.ID)

	p.ClickCount++
	if click.IsUnique {
		p.UniqueClickCount++
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkConverted(_ context.Context, clickID, userID string) (*model.Click, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.clicks[clickID]
	if !ok {
		return nil, repository.ErrClickNotFound
	}
	if c.IsConverted {
		return nil, repository.ErrAlreadyConverted
	}

	now := time.Now().UTC()
	c.IsConverted = true
	c.ConvertedUserID = userID
	c.ConvertedAt = &now
	if p, ok := s.promotions[c.PromotionID]; ok {
		p.ConversionCount++
	}

	copied := *c
	return &copied, nil
}

func (s *Store) GetClickByID(_ context.Context, id string) (*model.Click, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clicks[id]
	if !ok {
		return nil, repository.ErrClickNotFound
	}
	copied := *c
	return &copied, nil
}

// Clicks returns every recorded click in insertion order.
func (s *Store) Clicks() []*model.Click {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Click, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.clicks[id]
		out = append(out, &copied)
	}
	return out
}
