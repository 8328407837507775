package grammar

// #region sentence-type

// SentenceType is the structural type inferred from a rule's topic particle.
type SentenceType string

const (
	TypeTopicFocus       SentenceType = "topic_focus"       // について
	TypeTopicComment     SentenceType = "topic_comment"     // は
	TypeSubjectPredicate SentenceType = "subject_predicate" // が
	TypeTopicFormal      SentenceType = "topic_formal"      // に関して
	TypeObjectFocus      SentenceType = "object_focus"      // を
	TypeGeneral          SentenceType = "general"
)

// #endregion

// #region patterns

// Relation kinds assigned by ExtractPatterns.
const (
	KindHighRelation   = "high_relation"
	KindMediumRelation = "medium_relation"
	KindLowRelation    = "low_relation"
)

// StructuralPattern is the sentence shape suggested by one keyword bucket.
type StructuralPattern struct {
	Keyword     string
	Pattern     string
	Probability float64
	Kind        string
	Count       int // summed co-occurrence count of the bucket
}

// LexicalPattern is one term's usage within a keyword bucket.
type LexicalPattern struct {
	Keyword           string
	Term              string
	Frequency         int
	RelativeFrequency float64
	UsagePriority     string // "high" when Frequency > 2
}

// ContextualPattern classifies a bucket as abstract or concrete.
type ContextualPattern struct {
	Keyword   string
	Abstract  bool
	Formality float64
}

// Patterns is everything extracted from one user's relation graph.
type Patterns struct {
	Structural []StructuralPattern
	Lexical    []LexicalPattern
	Contextual []ContextualPattern
}

// #endregion

// #region rules

// SentenceRule is a top-level rewrite such as "NP について VP".
type SentenceRule struct {
	Pattern     string
	Probability float64
	Type        SentenceType
	Learned     bool
}

// PhraseRule expands NP or VP to a head word.
type PhraseRule struct {
	Symbol     string
	Head       string
	Usage      int
	Confidence float64
	Learned    bool
}

// RuleSet is the per-request grammar. Sentence is never empty once built by
// BuildRules.
type RuleSet struct {
	Sentence   []SentenceRule
	NounPhrase []PhraseRule
	VerbPhrase []PhraseRule
}

// #endregion

// #region skeleton

// Structure labels for skeletons.
const (
	StructureLearned   = "learned"
	StructureInduced   = "induced"
	StructureFallback  = "fallback"
	StructureMinimal   = "minimal"
	StructureEmergency = "emergency"
)

// Skeleton is the structural plan a sentence is assembled from.
type Skeleton struct {
	Type       SentenceType
	Structure  string
	Pattern    string
	Primary    string
	Support    []string
	Confidence float64
}

// HasPrimary reports whether the skeleton names a primary term.
func (s Skeleton) HasPrimary() bool {
	return s.Primary != ""
}

// Valid reports whether the skeleton can be assembled.
func (s Skeleton) Valid() bool {
	return s.HasPrimary() && s.Confidence > 0
}

// Minimal is the empty skeleton returned when nothing is known.
func Minimal() Skeleton {
	return Skeleton{Type: TypeGeneral, Structure: StructureMinimal, Support: []string{}}
}

// #endregion
