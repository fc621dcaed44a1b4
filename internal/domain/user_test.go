package domain

import "testing"

func TestPreferencesFlag(t *testing.T) {
	prefs := Preferences{PrefShowMusic: true, PrefShowGit: "yes"}

	if got := prefs.Flag(PrefShowMusic); got == nil || !*got {
		t.Fatalf("expected showMusic=true, got %v", got)
	}
	if got := prefs.Flag(PrefShowGit); got != nil {
		t.Fatalf("expected non-bool showGit to read as unset, got %v", *got)
	}
	if got := prefs.Flag(PrefShowRank); got != nil {
		t.Fatalf("expected missing showRank to read as unset, got %v", *got)
	}
	if prefs.Complete() {
		t.Fatal("expected incomplete preferences")
	}
}

func TestPreferencesMatches(t *testing.T) {
	local := LocalPreferences{ShowMusic: true, ShowGit: false, ShowRank: true}

	tests := []struct {
		name  string
		prefs Preferences
		want  bool
	}{
		{"equal", Preferences{PrefShowMusic: true, PrefShowGit: false, PrefShowRank: true}, true},
		{"differs", Preferences{PrefShowMusic: false, PrefShowGit: false, PrefShowRank: true}, false},
		{"unset", Preferences{PrefShowMusic: true, PrefShowRank: true}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prefs.Matches(local); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreferencesOverlayKeepsOtherKeys(t *testing.T) {
	prefs := Preferences{"theme": "dark", PrefShowMusic: false}
	out := prefs.Overlay(LocalPreferences{ShowMusic: true, ShowGit: true})

	if out["theme"] != "dark" {
		t.Errorf("expected passthrough key to survive, got %v", out["theme"])
	}
	if out.Flag(PrefShowMusic) == nil || !*out.Flag(PrefShowMusic) {
		t.Error("expected showMusic overlaid to true")
	}
	if out.Flag(PrefShowRank) == nil || *out.Flag(PrefShowRank) {
		t.Error("expected showRank overlaid to false")
	}
	if prefs[PrefShowMusic] != false {
		t.Error("Overlay must not mutate the receiver")
	}
}

func TestPreferencesLocal(t *testing.T) {
	local := Preferences{PrefShowMusic: true, PrefShowRank: true}.Local()
	want := LocalPreferences{ShowMusic: true, ShowRank: true}
	if local != want {
		t.Fatalf("Local() = %+v, want %+v", local, want)
	}
}
