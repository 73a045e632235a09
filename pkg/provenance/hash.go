package provenance

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
)

// HashValue returns a stable content hash of a field value: SHA-256 over
// the canonical (sorted-key) JSON serialization, hex encoded. Stable under
// key reordering and whitespace; used only for change detection.
func HashValue(v any) string {
	sum := sha256.Sum256(docs.Canonical(v))
	return hex.EncodeToString(sum[:])
}
