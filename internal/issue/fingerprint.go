package issue

import (
	"regexp"
	"strings"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

// digitRun and hexLike collapse the variable parts of an error message (ids,
// timestamps, counts) so that otherwise-identical errors fingerprint the
// same way. No library in the corpus does log-message normalization, so
// this stays on stdlib regexp.
var (
	digitRun = regexp.MustCompile(`\d+`)
	hexLike  = regexp.MustCompile(`[0-9a-fA-F]{8,}`)
)

// normalizedShape reduces an error message to its stable skeleton: lower
// cased, digits and hex-looking tokens collapsed to a placeholder.
func normalizedShape(msg string) string {
	s := strings.ToLower(msg)
	s = hexLike.ReplaceAllString(s, "#")
	s = digitRun.ReplaceAllString(s, "#")
	return strings.TrimSpace(s)
}

// computeFingerprint derives the clustering key spec.md §4.4 defines: the
// tuple (source, error_code, normalized error shape).
func computeFingerprint(s domain.Signal) domain.Fingerprint {
	return domain.Fingerprint{
		Source:          s.Source,
		ErrorCode:       s.ErrorCode,
		NormalizedShape: normalizedShape(s.ErrorMessage),
	}
}
