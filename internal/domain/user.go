// Package domain contains core domain types for the Code Time agent.
package domain

// Preference keys as stored remotely and in editor settings.
const (
	PrefShowMusic = "showMusic"
	PrefShowGit   = "showGit"
	PrefShowRank  = "showRank"
)

// PreferenceKeys lists the visibility flags reconciled with the remote profile.
var PreferenceKeys = []string{PrefShowMusic, PrefShowGit, PrefShowRank}

// User is the remote profile returned by /users/me.
type User struct {
	ID          int64       `json:"id"`
	Email       string      `json:"email"`
	Preferences Preferences `json:"preferences,omitempty"`
}

// Preferences is the remote preferences object. Keys other than the three
// visibility flags are passed through untouched on update.
type Preferences map[string]any

// Flag returns the tri-state value of a visibility flag. A nil result means unset.
func (p Preferences) Flag(key string) *bool {
	if p == nil {
		return nil
	}
	v, ok := p[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// Complete reports whether all three visibility flags are set.
func (p Preferences) Complete() bool {
	for _, key := range PreferenceKeys {
		if p.Flag(key) == nil {
			return false
		}
	}
	return true
}

// Matches reports whether every visibility flag is set and equal to local.
func (p Preferences) Matches(local LocalPreferences) bool {
	for _, key := range PreferenceKeys {
		flag := p.Flag(key)
		if flag == nil || *flag != local.Get(key) {
			return false
		}
	}
	return true
}

// Local extracts the three visibility flags. Unset flags read as false.
func (p Preferences) Local() LocalPreferences {
	var local LocalPreferences
	for _, key := range PreferenceKeys {
		if flag := p.Flag(key); flag != nil {
			local.Set(key, *flag)
		}
	}
	return local
}

// Overlay returns a copy of p with the local visibility flags written over it.
func (p Preferences) Overlay(local LocalPreferences) Preferences {
	out := make(Preferences, len(p)+len(PreferenceKeys))
	for k, v := range p {
		out[k] = v
	}
	for _, key := range PreferenceKeys {
		out[key] = local.Get(key)
	}
	return out
}

// LocalPreferences are the editor-side visibility settings.
type LocalPreferences struct {
	ShowMusic bool `json:"showMusic"`
	ShowGit   bool `json:"showGit"`
	ShowRank  bool `json:"showRank"`
}

// Get returns the flag stored under key.
func (l LocalPreferences) Get(key string) bool {
	switch key {
	case PrefShowMusic:
		return l.ShowMusic
	case PrefShowGit:
		return l.ShowGit
	case PrefShowRank:
		return l.ShowRank
	}
	return false
}

// Set stores the flag under key. Unknown keys are ignored.
func (l *LocalPreferences) Set(key string, value bool) {
	switch key {
	case PrefShowMusic:
		l.ShowMusic = value
	case PrefShowGit:
		l.ShowGit = value
	case PrefShowRank:
		l.ShowRank = value
	}
}
