// Package relationships implements the intra-group (C7) and inter-group
// (C8) relationship detectors: regex pattern matching first, then
// proximity/cue-phrase and optional embedding-similarity fallbacks.
package relationships

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lumenreach/transcriptgraph/internal/domain"
)

// patternTemplate is one regex template for an intra-group relationship
// type. Active-voice templates read "source verb target"; reversed marks
// the passive-voice alternatives that read "target verb-passive source"
// (e.g. "Y is caused by X" for a causes relationship), so the source and
// target concept-name patterns must be substituted in the opposite order.
type patternTemplate struct {
	expr     string
	reversed bool
}

// intraGroupPatterns maps each intra-group relationship type to its
// ordered, fixed regex templates. `%s` placeholders are substituted with
// the source and target concept-name patterns, in source-then-target order
// unless the template is marked reversed.
var intraGroupPatterns = map[domain.RelationshipType][]patternTemplate{
	domain.RelDefines: {
		{expr: `%s\s+(?:is|are|refers? to|means?|defined as)\s+%s`},
		{expr: `%s\s*[:\-]\s*%s`},
		{expr: `%s\s+(?:is|are)\s+(?:called|known as|termed)\s+%s`},
	},
	domain.RelCauses: {
		{expr: `%s\s+(?:causes?|leads? to|results? in|produces?)\s+%s`},
		{expr: `%s\s+(?:is|are)\s+(?:caused by|due to|result of)\s+%s`, reversed: true},
		{expr: `(?:because|since|as)\s+%s.+%s`},
	},
	domain.RelRequires: {
		{expr: `%s\s+(?:requires?|needs?|depends? on|relies? on)\s+%s`},
		{expr: `%s\s+(?:is|are)\s+(?:required|needed|necessary)\s+(?:for|by)\s+%s`, reversed: true},
		{expr: `(?:to|for)\s+%s.+(?:need|require)\s+%s`},
	},
	domain.RelContradicts: {
		{expr: `%s\s+(?:contradicts?|conflicts? with|opposes?)\s+%s`},
		{expr: `%s\s+(?:but|however|yet)\s+%s`},
		{expr: `(?:unlike|contrary to|in contrast to)\s+%s.+%s`},
	},
	domain.RelExemplifies: {
		{expr: `%s\s+(?:is|are)\s+(?:an?|one)\s+(?:example|instance)\s+of\s+%s`},
		{expr: `%s\s+(?:such as|like|including|e\.g\.|for example)\s+%s`, reversed: true},
		{expr: `(?:for example|for instance|such as).+%s.+%s`},
	},
	domain.RelImplements: {
		{expr: `%s\s+(?:implements?|realizes?)\s+%s`},
		{expr: `%s\s+(?:is|are)\s+implemented (?:by|in|using)\s+%s`, reversed: true},
	},
	domain.RelUses: {
		{expr: `%s\s+(?:uses?|utilizes?|employs?|applies?)\s+%s`},
		{expr: `%s\s+(?:is|are)\s+used (?:by|in|for)\s+%s`, reversed: true},
	},
}

// interGroupCuePhrases maps each inter-group relationship type to its
// ordered cue-phrase patterns, searched in the later group's text.
var interGroupCuePhrases = map[domain.RelationshipType][]string{
	domain.RelBuildsOn: {
		`(?:building|built) (?:on|upon)`,
		`(?:extending|extends?) (?:on|from)`,
		`taking (?:this|that|it) further`,
		`going deeper into`,
		`expanding on`,
	},
	domain.RelElaborates: {
		`(?:more|further) detail(?:s|ed)?`,
		`(?:to|let me) elaborate`,
		`specifically`,
		`in particular`,
		`(?:diving|dig) deeper`,
		`(?:closer|detailed) look`,
	},
	domain.RelReferences: {
		`(?:as|like) (?:I|we) (?:mentioned|said|discussed)`,
		`(?:earlier|previously|before)`,
		`(?:remember|recall) (?:that|when)`,
		`(?:back|going back) to`,
		`(?:as|like) (?:discussed|talked about)`,
	},
	domain.RelRefines: {
		`(?:more|better|improved) (?:accurate|precise|refined)`,
		`(?:to be|more) (?:clear|specific)`,
		`(?:actually|in fact|really)`,
		`(?:correcting|correction)`,
		`(?:refining|refined)`,
	},
}

// normalizeForPattern lowercases and collapses whitespace, matching the id
// and alias normalization used elsewhere.
func normalizeForPattern(text string) string {
	return domain.NormalizeConceptName(text)
}

// conceptNameRegex builds a word-bounded, case-insensitive regex for a
// concept name, tolerant of a trailing plural/possessive "'s"/"s".
func conceptNameRegex(name string) string {
	escaped := regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(name)))
	return `\b` + escaped + `(?:'?s)?\b`
}

// compileIntraPattern substitutes the source and target concept-name
// patterns into tmpl's two `%s` slots, swapping the order for passive-voice
// templates so the slot that reads first in the sentence always binds to
// the concept that's named first in tmpl's prose.
func compileIntraPattern(tmpl patternTemplate, sourcePattern, targetPattern string) (*regexp.Regexp, error) {
	first, second := sourcePattern, targetPattern
	if tmpl.reversed {
		first, second = targetPattern, sourcePattern
	}
	return regexp.Compile(`(?i)` + fmt.Sprintf(tmpl.expr, first, second))
}

// compileNameOnly compiles a bare concept-name pattern (no surrounding cue)
// for the proximity fallback's nearest-mention search.
func compileNameOnly(namePattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + namePattern)
}
