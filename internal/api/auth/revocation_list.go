package auth

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// RevokedSubjects is an in-process denylist of user ids whose unexpired access
// tokens must be refused. Entries live as long as an access token can, after
// which every token issued before the revocation has expired on its own.
type RevokedSubjects struct {
	entries *cache.Cache
}

func NewRevokedSubjects(accessTokenTTL time.Duration) *RevokedSubjects {
	return &RevokedSubjects{
		entries: cache.New(accessTokenTTL, 2*accessTokenTTL),
	}
}

// Revoke adds userID to the denylist.
func (r *RevokedSubjects) Revoke(userID string) {
	r.entries.SetDefault(userID, time.Now())
}

// IsRevoked reports whether userID is on the denylist.
func (r *RevokedSubjects) IsRevoked(userID string) bool {
	_, found := r.entries.Get(userID)
	return found
}
