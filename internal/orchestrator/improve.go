package orchestrator

// #region imports
import (
	"strings"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
)

// #endregion

// #region improve

// Improve appends one clarifying continuation to a weak reply. It returns ""
// when there is no term to anchor the clause on or the reply already carries
// it.
func Improve(text, primary string, support []string) string {
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return ""
	}
	clause := primary + "のどの点について知りたいか、もう少し教えてください。"
	for _, s := range support {
		if s = strings.TrimSpace(s); s != "" && !analysis.IsNoise(s) && s != primary {
			clause = primary + "と" + s + "の関係について、具体的な場面を教えていただけると、より詳しくお答えできます。"
			break
		}
	}
	if strings.Contains(text, clause) {
		return ""
	}
	return strings.TrimSpace(text) + clause
}

// #endregion

// #region improvements

// improvementNotes lists what the pipeline changed or suggests for a reply,
// after the collaborator's own suggestions.
func improvementNotes(predicted []string, minimal, improved bool) []string {
	out := make([]string, 0, len(predicted)+2)
	for _, p := range predicted {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if minimal {
		out = append(out, "low-confidence candidate replaced by template")
	}
	if improved {
		out = append(out, "clarifying question appended")
	}
	return out
}

// #endregion
