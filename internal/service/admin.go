package service

import (
	"context"
	"errors"
	"fmt"
)

// ErrSuperAdmin guards the one administrator that can never be removed.
var ErrSuperAdmin = errors.New("super admin cannot be removed")

// AdminStore persists the set of privileged user ids.
type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context) ([]int64, error)
	Add(ctx context.Context, userID int64) error
	Remove(ctx context.Context, userID int64) error
}

// AdminService manages the admin set. The super admin id is fixed at
// construction and auto-inserted at bootstrap.
type AdminService struct {
	admins       AdminStore
	superAdminID int64
}

func NewAdminService(admins AdminStore, superAdminID int64) *AdminService {
	return &AdminService{admins: admins, superAdminID: superAdminID}
}

// Bootstrap ensures the super admin row exists.
func (s *AdminService) Bootstrap(ctx context.Context) error {
	if err := s.admins.Add(ctx, s.superAdminID); err != nil {
		return fmt.Errorf("bootstrap super admin: %w", err)
	}
	return nil
}

func (s *AdminService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.admins.IsAdmin(ctx, userID)
}

func (s *AdminService) List(ctx context.Context) ([]int64, error) {
	return s.admins.List(ctx)
}

func (s *AdminService) Add(ctx context.Context, userID int64) error {
	return s.admins.Add(ctx, userID)
}

func (s *AdminService) Remove(ctx context.Context, userID int64) error {
	if userID == s.superAdminID {
		return ErrSuperAdmin
	}
	return s.admins.Remove(ctx, userID)
}

func (s *AdminService) SuperAdminID() int64 {
	return s.superAdminID
}
