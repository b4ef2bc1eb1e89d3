// Package names owns agent name hygiene: sanitizing caller-supplied names
// into archive-safe identifiers and generating fresh readable names for
// collision coercion.
package names

import (
	"errors"
	"math/rand"
	"strings"
	"time"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

const maxLen = 64

// ErrUnusable means sanitization left nothing of the input.
var ErrUnusable = errors.New("name has no usable characters")

// Sanitize strips everything outside [A-Za-z0-9_] while preserving the
// caller's casing, so "Backend-Harmonizer!!" becomes "BackendHarmonizer".
func Sanitize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return "", ErrUnusable
	}
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s, nil
}

// Normalize returns the lower-cased uniqueness key for a name.
func Normalize(raw string) (string, error) {
	s, err := Sanitize(raw)
	if err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

// Slugify derives the directory-safe project slug from a human key:
// lower-cased, runs of anything outside [a-z0-9] collapsed to single
// dashes. Case variants of one key land on the same slug, which is how
// projects merge. Returns "" when nothing survives.
func Slugify(humanKey string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(humanKey)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

var (
	adjectives = []string{
		"Amber", "Azure", "Bold", "Brisk", "Bronze", "Calm",
		"Cedar", "Civil", "Clever", "Copper", "Coral", "Crimson",
		"Deft", "Eager", "Ember", "Fleet", "Gentle", "Golden",
		"Granite", "Hardy", "Hazel", "Indigo", "Iron", "Ivory",
		"Jade", "Keen", "Lively", "Lucid", "Mellow", "Nimble",
		"Noble", "Olive", "Opal", "Patient", "Placid", "Quiet",
		"Rapid", "Rustic", "Sable", "Scarlet", "Silent", "Silver",
		"Steady", "Swift", "Tidal", "Umber", "Vivid", "Wry",
	}

	nouns = []string{
		"Anchor", "Atlas", "Badger", "Beacon", "Bridge", "Brook",
		"Canyon", "Castle", "Comet", "Condor", "Crane", "Delta",
		"Falcon", "Fjord", "Garnet", "Glacier", "Harbor", "Heron",
		"Island", "Lantern", "Ledger", "Lynx", "Marten", "Meadow",
		"Meridian", "Orchard", "Osprey", "Otter", "Prairie", "Quarry",
		"Raven", "Reef", "Ridge", "River", "Signal", "Sparrow",
		"Spruce", "Summit", "Tern", "Thicket", "Valley", "Willow",
	}
)

// Generate returns a fresh CamelCase adjective+noun name, e.g. "AmberRelay"
// or "QuietHarbor". Uniqueness is the caller's problem.
func Generate() string {
	return adjectives[rng.Intn(len(adjectives))] + nouns[rng.Intn(len(nouns))]
}
