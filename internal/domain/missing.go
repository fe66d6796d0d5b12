package domain

import (
	"regexp"
	"strings"
)

// UnknownCloseActor is accepted in place of a username when the actor
// cannot be determined.
const UnknownCloseActor = "unknown"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// MissingPrRecord is a merged or closed PR that still lacks a close actor.
type MissingPrRecord struct {
	Repository string `json:"repository"`
	PRNumber   int    `json:"pr_number"`
	Title      string `json:"title"`
	State      string `json:"state"` // "merged" | "closed"
	URL        string `json:"url"`
	File       string `json:"file"`
}

// CloseActorUpdate is one row of a manual-update submission.
type CloseActorUpdate struct {
	Repository string `json:"repository"`
	PRNumber   int    `json:"pr_number"`
	CloseActor string `json:"close_actor"`
	File       string `json:"file"`
}

// UpdateResults is the server's tally for a manual-update submission.
type UpdateResults struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// ValidCloseActor reports whether v is a GitHub-style username or the
// unknown sentinel.
func ValidCloseActor(v string) bool {
	return v == UnknownCloseActor || usernamePattern.MatchString(v)
}

// ValidateCloseActors checks every non-empty entry. Any violation rejects
// the whole batch; the returned error lists all offending values.
func ValidateCloseActors(values []string) error {
	var invalid []string
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if !ValidCloseActor(v) {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Invalid: invalid}
	}
	return nil
}

// BuildUpdates pairs records with entered actors, dropping blank entries.
// actors must be index-aligned with records.
func BuildUpdates(records []MissingPrRecord, actors []string) ([]CloseActorUpdate, error) {
	if err := ValidateCloseActors(actors); err != nil {
		return nil, err
	}
	updates := make([]CloseActorUpdate, 0, len(records))
	for i, rec := range records {
		if i >= len(actors) {
			break
		}
		actor := strings.TrimSpace(actors[i])
		if actor == "" {
			continue
		}
		updates = append(updates, CloseActorUpdate{
			Repository: rec.Repository,
			PRNumber:   rec.PRNumber,
			CloseActor: actor,
			File:       rec.File,
		})
	}
	return updates, nil
}
