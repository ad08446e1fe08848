package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"reading-leveler/internal/storage"
)

const (
	UsersKey   = "telegram_users"
	PendingKey = "telegram_pending"
)

// StoreRepository keeps a user list as a JSON array under one store key.
type StoreRepository struct {
	store storage.Store
	key   string
	mu    sync.Mutex
}

func NewStoreRepository(store storage.Store, key string) *StoreRepository {
	return &StoreRepository{store: store, key: key}
}

func (r *StoreRepository) LoadAll() ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *StoreRepository) Upsert(user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, u := range users {
		if u.ID == user.ID {
			users[i] = user
			updated = true
			break
		}
	}
	if !updated {
		users = append(users, user)
	}
	return r.saveUnlocked(users)
}

func (r *StoreRepository) Remove(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.ID != userID {
			out = append(out, u)
		}
	}
	return r.saveUnlocked(out)
}

func (r *StoreRepository) loadUnlocked() ([]User, error) {
	raw, ok, err := r.store.Get(context.Background(), r.key)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	if !ok || raw == "" {
		return []User{}, nil
	}
	var users []User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		// malformed -> start fresh
		return []User{}, nil
	}
	return users, nil
}

func (r *StoreRepository) saveUnlocked(users []User) error {
	b, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return r.store.Set(context.Background(), r.key, string(b))
}
