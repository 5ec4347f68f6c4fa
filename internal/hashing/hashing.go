// Package hashing provides deterministic HMAC-SHA256 pseudonymization for
// contact identities. Raw addresses are hashed server-side and never persisted;
// the hex digest is the only identity representation that leaves this package.
package hashing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SecretMinLength catches obvious misconfiguration of the hashing secret
const SecretMinLength = 16

// Hasher computes namespaced HMAC-SHA256 digests of normalized identities
type Hasher struct {
	secret []byte
}

// NewHasher creates a hasher from the configured secret
func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, fmt.Errorf("hashing secret is not configured")
	}
	if len(secret) < SecretMinLength {
		return nil, fmt.Errorf("hashing secret is too short (min %d chars); please rotate it", SecretMinLength)
	}
	return &Hasher{secret: []byte(secret)}, nil
}

// computeHMAC computes a namespaced hex HMAC-SHA256 digest. The namespace
// prefix avoids cross-field collisions (email vs thread vs event ids).
func (h *Hasher) computeHMAC(namespace, value string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(namespace + ":" + value))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashEmail deterministically hashes a single email address.
// The input is normalized before hashing so equivalent spellings collide.
func (h *Hasher) HashEmail(email string) string {
	return h.computeHMAC("email", NormalizeEmail(email))
}

// HashThread deterministically hashes an email thread id
func (h *Hasher) HashThread(threadID string) string {
	return h.computeHMAC("thread", threadID)
}

// HashMessage deterministically hashes a message id
func (h *Hasher) HashMessage(messageID string) string {
	return h.computeHMAC("message", messageID)
}

// EmailDomain extracts the lowercased domain part of an address, or "" if
// the input does not look like an address. Called in the same scope that
// hashes the raw value, before it is discarded.
func EmailDomain(email string) string {
	normalized := NormalizeEmail(email)
	at := strings.LastIndexByte(normalized, '@')
	if at < 0 || at == len(normalized)-1 {
		return ""
	}
	return normalized[at+1:]
}

// LooksLikeEmail is a light shape check for user-supplied addresses: one '@'
// with a non-empty local part and a domain containing a dot.
func LooksLikeEmail(email string) bool {
	normalized := NormalizeEmail(email)
	at := strings.IndexByte(normalized, '@')
	if at <= 0 || at != strings.LastIndexByte(normalized, '@') {
		return false
	}
	domain := normalized[at+1:]
	if domain == "" || strings.ContainsAny(normalized, " \t") {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// sharedInboxLocalParts are local-part patterns for role accounts and
// broadcast senders that should be penalized during scoring
var sharedInboxLocalParts = map[string]struct{}{
	"support":       {},
	"help":          {},
	"info":          {},
	"team":          {},
	"sales":         {},
	"billing":       {},
	"careers":       {},
	"admin":         {},
	"office":        {},
	"hr":            {},
	"noreply":       {},
	"no-reply":      {},
	"donotreply":    {},
	"do-not-reply":  {},
	"newsletter":    {},
	"notifications": {},
}

// IsSharedInbox reports whether an address looks like a shared/role inbox.
// Plus-addressing suffixes are stripped before matching.
func IsSharedInbox(email string) bool {
	normalized := NormalizeEmail(email)
	at := strings.IndexByte(normalized, '@')
	if at <= 0 {
		return false
	}
	local := normalized[:at]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	_, ok := sharedInboxLocalParts[local]
	return ok
}
