package filter

import "sync"

// Set is a set of profiles, each known by the keys of its call frames.
type Set struct {
	mu       sync.RWMutex
	profiles map[string]map[string]struct{}
}

func NewSet() *Set {
	return &Set{profiles: make(map[string]map[string]struct{})}
}

// Add adds or replaces a profile.
func (s *Set) Add(profileID string, keys map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileID] = keys
}

func (s *Set) Remove(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, profileID)
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Presence returns the share of profiles having a call frame key, between 0
// and 1.
func (s *Set) Presence(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.profiles) == 0 {
		return 0
	}
	var n int
	for _, keys := range s.profiles {
		if _, ok := keys[key]; ok {
			n++
		}
	}
	return float64(n) / float64(len(s.profiles))
}
