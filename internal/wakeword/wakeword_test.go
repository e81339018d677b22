package wakeword_test

import (
	"testing"

	"github.com/MrWong99/hearken/internal/wakeword"
)

func TestDetect(t *testing.T) {
	t.Parallel()
	d := wakeword.New([]string{"hey hearken"}, wakeword.WithVariants("hey harken", "ok hearken"))

	tests := []struct {
		name      string
		text      string
		found     bool
		phonetic  bool
		remainder string
	}{
		{"exact", "Hey Hearken, turn off the lights", true, false, "turn off the lights"},
		{"punctuation", "hey... hearken! what's next?", true, false, "what's next?"},
		{"variant", "OK hearken remind me at 5", true, false, "remind me at 5"},
		{"no space after comma", "Hey Hearken,remind me to call mom", true, false, "remind me to call mom"},
		{"glued by dash", "hey-hearken-stop the music", true, false, "stop the music"},
		{"accented glued word", "hey hearken,écoute ça", true, false, "écoute ça"},
		{"phrase only", "hey hearken", true, false, ""},
		{"phonetic split", "hey her ken play music", true, true, "play music"},
		{"phonetic misspelling", "hey hurken stop", true, true, "stop"},
		{"not at start", "I said hey hearken", false, false, ""},
		{"unrelated", "what time is my meeting tomorrow?", false, false, ""},
		{"empty", "", false, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := d.Detect(tc.text)
			if m.Found != tc.found {
				t.Fatalf("Found = %v, want %v (%+v)", m.Found, tc.found, m)
			}
			if !tc.found {
				return
			}
			if m.Phonetic != tc.phonetic {
				t.Errorf("Phonetic = %v, want %v", m.Phonetic, tc.phonetic)
			}
			if m.Remainder != tc.remainder {
				t.Errorf("Remainder = %q, want %q", m.Remainder, tc.remainder)
			}
			if m.Phrase != "hey hearken" {
				t.Errorf("Phrase = %q", m.Phrase)
			}
		})
	}
}
