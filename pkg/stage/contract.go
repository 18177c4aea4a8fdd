// Package stage defines the frozen stage contract: the thirteen-stage
// DAG every run drives, its ordering helpers, and the primary/review
// partition. This table is the single source of truth every other
// component in phase-tracker consults.
package stage

// Kind distinguishes data-producing stages from quality/repair passes.
type Kind string

const (
	// KindPrimary stages produce new data.
	KindPrimary Kind = "primary"
	// KindReview stages are quality gates or repair passes on the
	// preceding primary stage's output. Their id ends in "a".
	KindReview Kind = "review"
)

// Definition is the compile-time metadata for one stage.
type Definition struct {
	ID          string
	Label       string
	Description string
	Kind        Kind

	// Inputs/Outputs name the artifact filenames this stage declares
	// it consumes and produces, for documentation and tooling.
	Inputs  []string
	Outputs []string
}

// Order is the frozen, ordered stage sequence.
var Order = []string{"2", "2a", "3", "3a", "4", "4a", "5", "6", "6a", "7", "8", "8a", "9"}

// Definitions is the frozen id -> Definition table.
var Definitions = map[string]Definition{
	"2":  {ID: "2", Label: "Research", Description: "Gathers primary subject research.", Kind: KindPrimary, Outputs: []string{"output.json", "output.md"}},
	"2a": {ID: "2a", Label: "Research review", Description: "Quality gate over stage 2's research output.", Kind: KindReview, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"3":  {ID: "3", Label: "Synthesis", Description: "Synthesizes research into a structured brief.", Kind: KindPrimary, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"3a": {ID: "3a", Label: "Synthesis review", Description: "Quality gate over stage 3's synthesis.", Kind: KindReview, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"4":  {ID: "4", Label: "Outline", Description: "Builds the deck outline from the synthesized brief.", Kind: KindPrimary, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"4a": {ID: "4a", Label: "Outline review", Description: "Quality gate over stage 4's outline.", Kind: KindReview, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"5":  {ID: "5", Label: "Narrative", Description: "Expands the outline into slide-level narrative.", Kind: KindPrimary, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"6":  {ID: "6", Label: "Visual design", Description: "Assigns layouts, palettes, and visual treatments.", Kind: KindPrimary, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"6a": {ID: "6a", Label: "Visual design review", Description: "Quality gate over stage 6's visual design.", Kind: KindReview, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"7":  {ID: "7", Label: "Deck generation", Description: "Renders the final deck binary.", Kind: KindPrimary, Inputs: []string{"output.json"}, Outputs: []string{"output.json", "deck.pptx"}},
	"8":  {ID: "8", Label: "Quality check", Description: "Runs automated quality checks over the rendered deck.", Kind: KindPrimary, Inputs: []string{"output.json", "deck.pptx"}, Outputs: []string{"output.json"}},
	"8a": {ID: "8a", Label: "Quality repair", Description: "Repairs issues flagged by stage 8.", Kind: KindReview, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
	"9":  {ID: "9", Label: "Delivery", Description: "Packages the final artifacts for delivery.", Kind: KindPrimary, Inputs: []string{"output.json"}, Outputs: []string{"output.json"}},
}

func init() {
	primary := map[string]bool{}
	review := map[string]bool{}
	for _, id := range Order {
		def, ok := Definitions[id]
		if !ok {
			panic("stage: " + id + " missing from Definitions")
		}
		switch def.Kind {
		case KindPrimary:
			primary[id] = true
		case KindReview:
			review[id] = true
		default:
			panic("stage: " + id + " has unknown kind")
		}
	}
	// PRIMARY ∪ REVIEW = STAGE_ORDER, PRIMARY ∩ REVIEW = ∅ (testable
	// property #8); every review id ends in "a".
	for id := range review {
		if id[len(id)-1] != 'a' {
			panic("stage: review stage " + id + " does not end in 'a'")
		}
	}
	if len(primary)+len(review) != len(Order) {
		panic("stage: primary/review partition does not cover Order")
	}
}

// IsValid reports whether id names a defined stage.
func IsValid(id string) bool {
	_, ok := Definitions[id]
	return ok
}

// Index returns id's position in Order, or -1 if id is not a stage.
func Index(id string) int {
	for i, s := range Order {
		if s == id {
			return i
		}
	}
	return -1
}

// Next returns the stage after id, or "" if id is the last stage or
// is not a valid stage.
func Next(id string) string {
	i := Index(id)
	if i < 0 || i == len(Order)-1 {
		return ""
	}
	return Order[i+1]
}

// Prev returns the stage before id, or "" if id is the first stage or
// is not a valid stage.
func Prev(id string) string {
	i := Index(id)
	if i <= 0 {
		return ""
	}
	return Order[i-1]
}

// Slice returns the stages from the start of Order through (inclusive
// of) the given stage id. Returns nil if through is invalid.
func Slice(through string) []string {
	i := Index(through)
	if i < 0 {
		return nil
	}
	out := make([]string, i+1)
	copy(out, Order[:i+1])
	return out
}

// SliceFrom returns the stages from "from" (inclusive) through
// "through" (inclusive). Returns nil if either bound is invalid or
// from comes after through.
func SliceFrom(from, through string) []string {
	fi, ti := Index(from), Index(through)
	if fi < 0 || ti < 0 || fi > ti {
		return nil
	}
	out := make([]string, ti-fi+1)
	copy(out, Order[fi:ti+1])
	return out
}

// IsReview reports whether id is a review-kind stage.
func IsReview(id string) bool {
	def, ok := Definitions[id]
	return ok && def.Kind == KindReview
}

// Last returns the final stage in Order.
func Last() string {
	return Order[len(Order)-1]
}
