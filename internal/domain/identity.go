package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// identitySeparator joins scope-key fields before hashing. The unit
// separator control character does not occur in paths, titles, or ids.
const identitySeparator = "\x1f"

// Identity derives a stable fragment identifier from an ordered scope key.
// Identical inputs always produce the identical id, across runs and across
// processes, which is what makes re-indexing upsert instead of duplicate.
func Identity(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, identitySeparator)))
	return hex.EncodeToString(sum[:])
}

// CodeSymbolIdentity derives the id for a code symbol fragment
func CodeSymbolIdentity(projectID, filePath, symbolName string, startLine int) string {
	return Identity(projectID, filePath, symbolName, strconv.Itoa(startLine))
}

// KnowledgeIdentity derives the id for a knowledge fragment
func KnowledgeIdentity(orgID, title string) string {
	return Identity(orgID, title)
}

// SessionIdentity derives the id for a session interaction fragment
func SessionIdentity(orgID, sessionID string, turnIndex int) string {
	return Identity(orgID, sessionID, strconv.Itoa(turnIndex))
}
