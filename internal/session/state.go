package session

import "sync"

// State is the mutable session context shared by the manager's operations.
type State struct {
	mu               sync.Mutex
	jwt              string
	loggedIn         bool
	initializedPrefs bool
}

// Token returns the token cached in memory.
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jwt
}

func (s *State) setToken(jwt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jwt = jwt
}

// LoggedIn returns the last known login flag.
func (s *State) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// swapLoggedIn records the login flag and reports whether it changed.
func (s *State) swapLoggedIn(loggedIn bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.loggedIn != loggedIn
	s.loggedIn = loggedIn
	return changed
}

// PrefsInitialized reports whether preferences were initialized for the current token.
func (s *State) PrefsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializedPrefs
}

// claimPrefsInit marks preferences initialized and reports whether the caller
// is the one that should run the initialization.
func (s *State) claimPrefsInit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initializedPrefs {
		return false
	}
	s.initializedPrefs = true
	return true
}

func (s *State) resetPrefs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializedPrefs = false
}
