package dns

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const slugLength = 10

// DeriveSubdomain produces a DNS-label-safe slug for a project. The slug
// is deterministic for fixed inputs and always starts with a letter; it
// only needs to be collision-resistant, not secret.
func DeriveSubdomain(ownerID, projectID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%d", ownerID, projectID, ts.Unix())))
	slug := strings.ToLower(hex.EncodeToString(sum[:])[:slugLength])
	out := []byte(slug)
	for i, c := range out {
		if !isAlphanumeric(c) {
			out[i] = '-'
		}
	}
	if !isLetter(out[0]) {
		out[0] = 'p'
	}
	return string(out)
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}

func isAlphanumeric(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9')
}
