package memstore

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"marketflow/auth"
	"marketflow/profile"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) CreateUser(_ context.Context, params auth.CreateUserParams) (auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(params.Email)
	if _, ok := r.s.usersByEmail[email]; ok {
		return auth.User{}, auth.ErrDuplicateEmail
	}
	now := clock()
	u := auth.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users[u.ID] = u
	r.s.usersByEmail[email] = u.ID
	return u, nil
}

func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return r.s.users[id], nil
}

func (r *UserRepository) GetUserByID(_ context.Context, userID string) (auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

type ProfileRepository struct {
	s *Store
}

func (r *ProfileRepository) Get(_ context.Context, role auth.Role, userID string) (profile.Profile, error) {
	if role != auth.RoleBuyer && role != auth.RoleSeller {
		return profile.Profile{}, profile.ErrUnsupportedRole
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[profileKey{role: role, userID: userID}]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}

func (r *ProfileRepository) Upsert(_ context.Context, p profile.Profile) (profile.Profile, error) {
	if p.Role != auth.RoleBuyer && p.Role != auth.RoleSeller {
		return profile.Profile{}, profile.ErrUnsupportedRole
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.profiles[profileKey{role: p.Role, userID: p.UserID}] = p
	return p, nil
}
