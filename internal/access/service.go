// Package access answers ban and manager questions for booking owners.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonbot/internal/models"

	"github.com/rs/zerolog"
)

// ClientStore persists the client aggregate that carries the ban flag.
type ClientStore interface {
	GetClient(ctx context.Context, owner string) (*models.Client, error)
	UpsertClient(ctx context.Context, c *models.Client) error
}

// Manager is a salon operator allowed to ban clients and receive notifications.
type Manager struct {
	Owner  string `yaml:"owner" json:"owner"`
	ChatID int64  `yaml:"chat_id" json:"chat_id"`
	Name   string `yaml:"name" json:"name"`
}

// Service implements ban status lookups and ban management.
type Service struct {
	clients  ClientStore
	managers map[string]Manager
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new access control service.
func NewService(clients ClientStore, managers []Manager, logger zerolog.Logger) *Service {
	byOwner := make(map[string]Manager, len(managers))
	for _, m := range managers {
		if m.Owner == "" {
			continue
		}
		byOwner[m.Owner] = m
	}
	return &Service{
		clients:  clients,
		managers: byOwner,
		now:      time.Now,
		logger:   logger.With().Str("component", "access").Logger(),
	}
}

// GetBanStatus reports whether owner is banned. Unknown owners are not banned.
func (s *Service) GetBanStatus(ctx context.Context, owner string) (models.BanStatus, error) {
	c, err := s.clients.GetClient(ctx, owner)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.BanStatus{}, nil
		}
		return models.BanStatus{}, fmt.Errorf("get client %s: %w", owner, err)
	}
	return models.BanStatus{Banned: c.Banned, Reason: c.BanReason}, nil
}

// Ban marks owner as banned. bannedBy must be a manager; an empty bannedBy
// means the call is already authorized (admin API key).
func (s *Service) Ban(ctx context.Context, owner, reason, bannedBy string) error {
	if bannedBy != "" {
		if err := s.ManagerMiddleware(bannedBy); err != nil {
			return err
		}
	}

	c, err := s.loadOrNew(ctx, owner)
	if err != nil {
		return err
	}
	c.Banned = true
	c.BanReason = strings.TrimSpace(reason)
	if err := s.clients.UpsertClient(ctx, c); err != nil {
		return fmt.Errorf("upsert client %s: %w", owner, err)
	}

	s.logger.Info().
		Str("owner", owner).
		Str("banned_by", bannedBy).
		Str("reason", c.BanReason).
		Msg("client banned")

	return nil
}

// Unban clears the ban flag.
func (s *Service) Unban(ctx context.Context, owner, unbannedBy string) error {
	if unbannedBy != "" {
		if err := s.ManagerMiddleware(unbannedBy); err != nil {
			return err
		}
	}

	c, err := s.clients.GetClient(ctx, owner)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get client %s: %w", owner, err)
	}
	if !c.Banned {
		return nil
	}
	c.Banned = false
	c.BanReason = ""
	if err := s.clients.UpsertClient(ctx, c); err != nil {
		return fmt.Errorf("upsert client %s: %w", owner, err)
	}

	s.logger.Info().
		Str("owner", owner).
		Msg("client unbanned")

	return nil
}

// IsManager checks if owner is a manager.
func (s *Service) IsManager(owner string) bool {
	_, ok := s.managers[owner]
	return ok
}

// GetManagerChatIDs returns all manager chat IDs.
func (s *Service) GetManagerChatIDs() []int64 {
	ids := make([]int64, 0, len(s.managers))
	for _, m := range s.managers {
		if m.ChatID != 0 {
			ids = append(ids, m.ChatID)
		}
	}
	return ids
}

// ManagerMiddleware rejects callers without manager permissions.
func (s *Service) ManagerMiddleware(owner string) error {
	if !s.IsManager(owner) {
		return &AccessDeniedError{Reason: "only managers may do this"}
	}
	return nil
}

func (s *Service) loadOrNew(ctx context.Context, owner string) (*models.Client, error) {
	c, err := s.clients.GetClient(ctx, owner)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return &models.Client{Owner: owner, FirstSeenAt: s.now().UTC()}, nil
	}
	return nil, fmt.Errorf("get client %s: %w", owner, err)
}

// AccessDeniedError is returned when the caller lacks permissions.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
