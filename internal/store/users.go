package store

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

const usersTable = "users"

// CreateUser inserts a new account. It fails with ErrConflict when the
// username or email is already registered.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	var existing []User
	err := s.db.From(usersTable).
		Where(goqu.Or(
			goqu.C("username").Eq(nu.Username),
			goqu.C("email").Eq(nu.Email),
		)).
		Limit(1).
		ScanStructsContext(ctx, &existing)
	if err != nil {
		return nil, fmt.Errorf("store: lookup user: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrConflict
	}

	displayName := nu.DisplayName
	if displayName == "" {
		displayName = nu.Username
	}
	u := &User{
		UserID:       s.newID(),
		Username:     nu.Username,
		Email:        nu.Email,
		DisplayName:  displayName,
		PasswordHash: nu.PasswordHash,
		Theme:        "dark",
		Status:       "offline",
		CreatedAt:    s.timestamp(),
	}

	err = execInsert(ctx, s.db.Insert(usersTable).Rows(goqu.Record{
		"user_id":       u.UserID,
		"username":      u.Username,
		"email":         u.Email,
		"display_name":  u.DisplayName,
		"password_hash": u.PasswordHash,
		"avatar":        u.Avatar,
		"bio":           u.Bio,
		"theme":         u.Theme,
		"custom_status": u.CustomStatus,
		"status":        u.Status,
		"created_at":    u.CreatedAt,
	}))
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, userID string) (*User, error) {
	return s.findUser(ctx, goqu.C("user_id").Eq(userID))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, goqu.C("username").Eq(username))
}

func (s *Store) findUser(ctx context.Context, where goqu.Expression) (*User, error) {
	var u User
	found, err := s.db.From(usersTable).Where(where).ScanStructContext(ctx, &u)
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &u, nil
}
