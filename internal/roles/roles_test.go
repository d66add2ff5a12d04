package roles

import "testing"

type memRepo struct {
	m     map[int64]string
	saves int
}

func (r *memRepo) LoadAll() (map[int64]string, error) {
	out := make(map[int64]string, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out, nil
}

func (r *memRepo) SaveAll(m map[int64]string) error {
	r.saves++
	r.m = m
	return nil
}

func TestResolutionOrder(t *testing.T) {
	s := NewWithRepos(nil, nil, "fallback role")
	userID := int64(1)

	if got := s.Resolve(userID); got != "fallback role" {
		t.Fatalf("no assignments: want fallback, got %q", got)
	}

	if _, err := s.SelectDefault(userID, "role_expert"); err != nil {
		t.Fatalf("select default: %v", err)
	}
	if got := s.Resolve(userID); got != DefaultChoices["role_expert"] {
		t.Fatalf("default tier not resolved: %q", got)
	}

	s.SetOverride(userID, "Pirate")
	if got := s.Resolve(userID); got != "Pirate" {
		t.Fatalf("override must win: %q", got)
	}

	// Removing the override reverts to the default, not the fallback.
	if !s.ResetOverride(userID) {
		t.Fatalf("override existed, reset reported false")
	}
	if got := s.Resolve(userID); got != DefaultChoices["role_expert"] {
		t.Fatalf("after reset want default tier, got %q", got)
	}

	if s.ResetOverride(userID) {
		t.Fatalf("second reset must report false")
	}
}

func TestSelectDefaultUnknownChoice(t *testing.T) {
	s := NewWithRepos(nil, nil, "fallback")
	if _, err := s.SelectDefault(1, "role_nonsense"); err != ErrUnknownChoice {
		t.Fatalf("want ErrUnknownChoice, got %v", err)
	}
}

func TestWriteThroughAndPreload(t *testing.T) {
	overrides := &memRepo{m: map[int64]string{5: "Poet"}}
	defaults := &memRepo{}
	s := NewWithRepos(overrides, defaults, "fallback")

	if got := s.Resolve(5); got != "Poet" {
		t.Fatalf("override preload not effective: %q", got)
	}

	s.SetOverride(6, "Pirate")
	if overrides.saves != 1 {
		t.Fatalf("override not persisted: saves=%d", overrides.saves)
	}
	if _, err := s.SelectDefault(6, "role_companion"); err != nil {
		t.Fatalf("select default: %v", err)
	}
	if defaults.saves != 1 {
		t.Fatalf("default not persisted: saves=%d", defaults.saves)
	}
	if overrides.m[6] != "Pirate" {
		t.Fatalf("persisted override map wrong: %+v", overrides.m)
	}
}
