// Package identity maps human-readable names to stable identifiers.
//
// A name is lowercased, its spaces are replaced with '-', and the UTF-8
// bytes are hashed with MD5. The 16-byte digest is used as-is as the
// identifier, so the mapping is identical across restarts and platforms.
package identity

import (
	"crypto/md5"
	"strings"

	"github.com/google/uuid"
)

// Separator joins super collection and collection titles before hashing.
// Titles may not contain it.
const Separator = "|"

// Normalize lowercases text and replaces spaces with '-'.
func Normalize(text string) string {
	return strings.ReplaceAll(strings.ToLower(text), " ", "-")
}

// DeriveID returns the identifier for text. The empty string is a valid
// input with its own identifier.
func DeriveID(text string) uuid.UUID {
	return uuid.UUID(md5.Sum([]byte(Normalize(text))))
}

// DeriveSuperCollectionID returns the identifier of a super collection.
func DeriveSuperCollectionID(title string) uuid.UUID {
	return DeriveID(title)
}

// DeriveCollectionID returns the identifier of the collection named
// collectionTitle inside superCollectionTitle.
func DeriveCollectionID(superCollectionTitle, collectionTitle string) uuid.UUID {
	return DeriveID(superCollectionTitle + Separator + collectionTitle)
}

// ValidTitle reports whether title can be used for a super collection or
// collection.
func ValidTitle(title string) bool {
	return strings.TrimSpace(title) != "" && !strings.Contains(title, Separator)
}

// CollectionPath is the external path of a collection, e.g. "/acme/maps".
func CollectionPath(superCollectionTitle, collectionTitle string) string {
	return "/" + Normalize(superCollectionTitle) + "/" + Normalize(collectionTitle)
}
