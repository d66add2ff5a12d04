package auth

import (
	"log"
	"strings"
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
	SaveAll(users []User) error
}

// Decision is the outcome of gating one incoming message.
type Decision int

const (
	// Allow: the user is authorized, process the message.
	Allow Decision = iota
	// PromptSecret: not authorized and the message is not the secret word;
	// the caller prompts and stops.
	PromptSecret
	// GrantedNow: the message was the secret word, the user is authorized
	// from now on. The triggering message is consumed by the grant.
	GrantedNow
)

type Service struct {
	mu         sync.RWMutex
	secret     string
	repo       Repository
	authorized map[int64]User
}

func NewWithRepo(repo Repository, secret string) (*Service, error) {
	s := &Service{repo: repo, secret: secret, authorized: make(map[int64]User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err == nil {
			for _, u := range users {
				s.authorized[u.ID] = u
			}
		}
	}
	return s, nil
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authorized[userID]
	return ok
}

// Check gates one incoming message. Authorization is one-way: once a user
// is granted, every later check returns Allow regardless of content.
// Comparison against the secret is exact and case-sensitive after
// trimming surrounding whitespace; an empty configured secret never grants.
func (s *Service) Check(user User, rawText string) Decision {
	if s.IsAllowed(user.ID) {
		return Allow
	}
	if s.secret == "" || strings.TrimSpace(rawText) != s.secret {
		return PromptSecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorized[user.ID]; ok {
		return Allow
	}
	s.authorized[user.ID] = user
	if s.repo != nil {
		if err := s.repo.SaveAll(s.listLocked()); err != nil {
			// In-memory state stays authoritative; the grant holds.
			log.Printf("failed to persist authorized users: %v", err)
		}
	}
	return GrantedNow
}

func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Service) listLocked() []User {
	out := make([]User, 0, len(s.authorized))
	for _, u := range s.authorized {
		out = append(out, u)
	}
	return out
}
