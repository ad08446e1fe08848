package auth

import (
	"sort"
	"sync"
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID int64) error
}

// Service is the Telegram allowlist. A service created without any users is
// open: every user is allowed until the first one is added.
type Service struct {
	mu           sync.RWMutex
	repo         Repository
	allowedUsers map[int64]User
}

func NewWithRepo(repo Repository, initial []int64) (*Service, error) {
	s := &Service{repo: repo, allowedUsers: make(map[int64]User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			s.allowedUsers[u.ID] = u
		}
	}
	// env ids carry no profile data
	for _, id := range initial {
		if _, ok := s.allowedUsers[id]; !ok {
			s.allowedUsers[id] = User{ID: id}
		}
	}
	return s, nil
}

func (s *Service) Open() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.allowedUsers) == 0
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.allowedUsers) == 0 {
		return true
	}
	_, ok := s.allowedUsers[userID]
	return ok
}

func (s *Service) Upsert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedUsers[user.ID] = user
	if s.repo != nil {
		return s.repo.Upsert(user)
	}
	return nil
}

func (s *Service) Remove(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowedUsers, userID)
	if s.repo != nil {
		return s.repo.Remove(userID)
	}
	return nil
}

// List returns the allowed users ordered by id.
func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.allowedUsers))
	for _, u := range s.allowedUsers {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
