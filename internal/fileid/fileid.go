// Package fileid derives deterministic identifiers from file paths, so re-indexing a file
// overwrites its previous records instead of duplicating them.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const prefix = "file:"

// namespace scopes UnitID's name-based UUIDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("colindex:file-unit"))

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// UnitID returns the record id of the unitIndex-th unit extracted from absolutePath. It is a
// name-based (v5) UUID, stable across runs.
func UnitID(absolutePath string, unitIndex int) string {
	name := filepath.Clean(absolutePath) + "#" + strconv.Itoa(unitIndex)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}
