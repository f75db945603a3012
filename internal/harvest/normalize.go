package harvest

import (
	"strings"

	"github.com/sells-group/lead-harvest/internal/textnorm"
)

// IdentityKey identifies a business within a run.
type IdentityKey struct {
	Name  string
	Phone string
}

// KeyOf derives the identity key of a candidate.
func KeyOf(ec EnrichedCandidate) IdentityKey {
	return IdentityKey{
		Name:  NormalizeName(ec.Name),
		Phone: NormalizePhone(ec.Enrichment.Phone),
	}
}

// NormalizeName is the name form used for matching and identity keys.
func NormalizeName(s string) string { return textnorm.Name(s) }

// NormalizePhone is the phone form used for identity keys.
func NormalizePhone(s string) string { return textnorm.Phone(s) }

// containsAny reports whether the normalized name contains any normalized
// needle. Blank needles never match.
func containsAny(name string, needles []string) (string, bool) {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(name, n) {
			return n, true
		}
	}
	return "", false
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		n := NormalizeName(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
