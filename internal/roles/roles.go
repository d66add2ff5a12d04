package roles

import (
	"errors"
	"log"
	"sync"
)

// DefaultChoices enumerates the built-in roles selectable from the /start
// keyboard, keyed by callback id.
var DefaultChoices = map[string]string{
	"role_companion": "You are a friendly conversational companion. Keep replies warm, informal and brief.",
	"role_expert":    "You are a precise technical expert. Answer thoroughly, cite assumptions, prefer concrete examples.",
}

var ErrUnknownChoice = errors.New("unknown default role choice")

type Repository interface {
	LoadAll() (map[int64]string, error)
	SaveAll(roles map[int64]string) error
}

// Service resolves the role text steering the model for a user.
// Resolution order: explicit override, then the selected default choice,
// then the configured global fallback. Setting an override does not clear
// the default; resetting the override reverts to the default tier.
type Service struct {
	mu           sync.RWMutex
	fallback     string
	overrides    map[int64]string
	defaults     map[int64]string
	overrideRepo Repository
	defaultRepo  Repository
}

func NewWithRepos(overrideRepo, defaultRepo Repository, fallback string) *Service {
	s := &Service{
		fallback:     fallback,
		overrides:    make(map[int64]string),
		defaults:     make(map[int64]string),
		overrideRepo: overrideRepo,
		defaultRepo:  defaultRepo,
	}
	if overrideRepo != nil {
		if m, err := overrideRepo.LoadAll(); err == nil {
			s.overrides = m
		}
	}
	if defaultRepo != nil {
		if m, err := defaultRepo.LoadAll(); err == nil {
			s.defaults = m
		}
	}
	return s
}

func (s *Service) Resolve(userID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.overrides[userID]; ok {
		return r
	}
	if r, ok := s.defaults[userID]; ok {
		return r
	}
	return s.fallback
}

func (s *Service) Override(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.overrides[userID]
	return r, ok
}

func (s *Service) SetOverride(userID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[userID] = role
	s.persistLocked(s.overrideRepo, s.overrides, "override roles")
}

// ResetOverride removes the user's override role and reports whether one
// was set. Resolution falls back to the default tier afterwards.
func (s *Service) ResetOverride(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[userID]; !ok {
		return false
	}
	delete(s.overrides, userID)
	s.persistLocked(s.overrideRepo, s.overrides, "override roles")
	return true
}

// SelectDefault assigns one of the built-in DefaultChoices and returns its
// role text.
func (s *Service) SelectDefault(userID int64, choice string) (string, error) {
	role, ok := DefaultChoices[choice]
	if !ok {
		return "", ErrUnknownChoice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[userID] = role
	s.persistLocked(s.defaultRepo, s.defaults, "default roles")
	return role, nil
}

func (s *Service) persistLocked(repo Repository, m map[int64]string, what string) {
	if repo == nil {
		return
	}
	cp := make(map[int64]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	if err := repo.SaveAll(cp); err != nil {
		log.Printf("failed to persist %s: %v", what, err)
	}
}
