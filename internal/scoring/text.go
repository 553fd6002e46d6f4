package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"newsreel/discoveryservice/internal/domain"
)

// Config carries the rule weights. Penalties are stored as positive
// magnitudes and subtracted where they apply.
type Config struct {
	SubjectOverlapMax   float64
	LocationBonus       float64
	LocationTitleBonus  float64
	KeyVisualBonus      float64
	MustShowBonus       float64
	PersonFullBonus     float64
	PersonSurnameBonus  float64
	PersonTokenBonus    float64
	PersonAbsentPenalty float64
	ClusterBonusMax     float64
	MarqueePenalty      float64
}

func DefaultConfig() Config {
	return Config{
		SubjectOverlapMax:   40,
		LocationBonus:       20,
		LocationTitleBonus:  10,
		KeyVisualBonus:      20,
		MustShowBonus:       30,
		PersonFullBonus:     60,
		PersonSurnameBonus:  50,
		PersonTokenBonus:    40,
		PersonAbsentPenalty: 20,
		ClusterBonusMax:     25,
		MarqueePenalty:      25,
	}
}

// TextScorer rates candidate metadata against a semantic target with a
// fixed, ordered rule list. Same inputs, same score, no I/O.
type TextScorer struct {
	cfg Config
}

func NewTextScorer(cfg Config) *TextScorer {
	def := DefaultConfig()
	if cfg.SubjectOverlapMax <= 0 {
		cfg.SubjectOverlapMax = def.SubjectOverlapMax
	}
	if cfg.LocationBonus <= 0 {
		cfg.LocationBonus = def.LocationBonus
	}
	if cfg.LocationTitleBonus <= 0 {
		cfg.LocationTitleBonus = def.LocationTitleBonus
	}
	if cfg.KeyVisualBonus <= 0 {
		cfg.KeyVisualBonus = def.KeyVisualBonus
	}
	if cfg.MustShowBonus <= 0 {
		cfg.MustShowBonus = def.MustShowBonus
	}
	if cfg.PersonFullBonus <= 0 {
		cfg.PersonFullBonus = def.PersonFullBonus
	}
	if cfg.PersonSurnameBonus <= 0 {
		cfg.PersonSurnameBonus = def.PersonSurnameBonus
	}
	if cfg.PersonTokenBonus <= 0 {
		cfg.PersonTokenBonus = def.PersonTokenBonus
	}
	if cfg.PersonAbsentPenalty <= 0 {
		cfg.PersonAbsentPenalty = def.PersonAbsentPenalty
	}
	if cfg.ClusterBonusMax <= 0 {
		cfg.ClusterBonusMax = def.ClusterBonusMax
	}
	if cfg.MarqueePenalty <= 0 {
		cfg.MarqueePenalty = def.MarqueePenalty
	}
	return &TextScorer{cfg: cfg}
}

type textRule struct {
	name  string
	apply func(s *TextScorer, clip clipText, target targetText) float64
}

// textRules fire in order; flag order in the output follows it.
var textRules = []textRule{
	{"subject-overlap", (*TextScorer).subjectOverlap},
	{"person-name", (*TextScorer).personName},
	{"location", (*TextScorer).location},
	{"key-visuals", (*TextScorer).keyVisuals},
	{"must-show", (*TextScorer).mustShow},
	{"cluster", (*TextScorer).cluster},
	{"marquee", (*TextScorer).marquee},
}

// Score rates one candidate's text metadata against the target and
// returns the clamped score plus a flag per rule that fired, carrying
// its signed contribution ("person-name+60", "marquee-25").
func (s *TextScorer) Score(c domain.Candidate, target domain.SemanticTarget) (float64, []string) {
	clip := buildClipText(c)
	tt := buildTargetText(target)

	total := 0.0
	var flags []string
	for _, rule := range textRules {
		points := rule.apply(s, clip, tt)
		if points == 0 {
			continue
		}
		total += points
		flags = append(flags, scoreFlag(rule.name, points))
	}
	return clampScore(total), flags
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

// subjectOverlap rewards FOOTAGE candidates whose text covers the
// target's subject vocabulary. Full credit at three distinct words,
// proportional below that.
func (s *TextScorer) subjectOverlap(clip clipText, target targetText) float64 {
	if target.mode == domain.ModePerson || len(target.subjectWords) == 0 {
		return 0
	}
	matched := overlapCount(target.subjectWords, clip.tokens)
	if matched == 0 {
		return 0
	}
	coverage := float64(matched) / 3
	if coverage > 1 {
		coverage = 1
	}
	return s.cfg.SubjectOverlapMax * coverage
}

// personName checks the required person, best match wins: full name,
// surname only, any significant token. A PERSON target whose person
// never appears gets docked.
func (s *TextScorer) personName(clip clipText, target targetText) float64 {
	if target.mode != domain.ModePerson || len(target.personTokens) == 0 {
		return 0
	}
	if allTokensIn(target.personTokens, clip.tokens) {
		return s.cfg.PersonFullBonus
	}
	surname := target.personTokens[len(target.personTokens)-1]
	if _, ok := clip.tokens[surname]; ok {
		return s.cfg.PersonSurnameBonus
	}
	if overlapCount(target.personTokens, clip.tokens) > 0 {
		return s.cfg.PersonTokenBonus
	}
	return -s.cfg.PersonAbsentPenalty
}

func (s *TextScorer) location(clip clipText, target targetText) float64 {
	if len(target.countryTokens) == 0 {
		return 0
	}
	if !allTokensIn(target.countryTokens, clip.tokens) {
		return 0
	}
	points := s.cfg.LocationBonus
	if allTokensIn(target.countryTokens, clip.titleTokens) {
		points += s.cfg.LocationTitleBonus
	}
	return points
}

func (s *TextScorer) keyVisuals(clip clipText, target targetText) float64 {
	points := 0.0
	for _, phrase := range target.keyVisuals {
		if allTokensIn(phrase, clip.tokens) {
			points += s.cfg.KeyVisualBonus
		}
	}
	return points
}

// mustShow gives full credit per phrase when every token appears,
// proportional credit for partial token overlap.
func (s *TextScorer) mustShow(clip clipText, target targetText) float64 {
	points := 0.0
	for _, phrase := range target.mustShow {
		matched := overlapCount(phrase, clip.tokens)
		if matched == 0 {
			continue
		}
		points += s.cfg.MustShowBonus * float64(matched) / float64(len(phrase))
	}
	return points
}

// cluster rewards clips that carry the stock-footage vocabulary of a
// domain cluster the target subject triggers. Best aligned cluster
// only, full credit at three vocabulary hits.
func (s *TextScorer) cluster(clip clipText, target targetText) float64 {
	best := 0.0
	for _, dc := range domain.DomainClusters {
		if !clusterAligned(dc, target.subjectSet) {
			continue
		}
		matched := overlapCount(clusterVocabulary(dc), clip.tokens)
		if matched == 0 {
			continue
		}
		coverage := float64(matched) / 3
		if coverage > 1 {
			coverage = 1
		}
		if points := s.cfg.ClusterBonusMax * coverage; points > best {
			best = points
		}
	}
	return best
}

// marquee penalizes loud thumbnail-bait words in the title unless the
// target itself asked for them.
func (s *TextScorer) marquee(clip clipText, target targetText) float64 {
	points := 0.0
	for _, keyword := range domain.MarqueeKeywords {
		phrase := tokenize(keyword)
		if len(phrase) == 0 {
			continue
		}
		if anyTokenInSet(phrase, target.subjectSet) {
			continue
		}
		if allTokensIn(phrase, clip.titleTokens) {
			points -= s.cfg.MarqueePenalty
		}
	}
	return points
}

// ---------------------------------------------------------------------------
// Text preparation
// ---------------------------------------------------------------------------

var scoreTokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var scoreStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "and": {}, "or": {}, "to": {}, "with": {}, "from": {},
	"by": {}, "is": {}, "are": {}, "was": {}, "were": {}, "as": {},
	"its": {}, "his": {}, "her": {}, "their": {}, "over": {}, "after": {},
	"into": {}, "amid": {}, "new": {},
}

var scoreAccentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldText(input string) string {
	folded, _, err := transform.String(scoreAccentFolder, strings.ToLower(input))
	if err != nil {
		return strings.ToLower(input)
	}
	return folded
}

func tokenize(text string) []string {
	return scoreTokenPattern.FindAllString(foldText(text), -1)
}

// significantTokens drops stopwords and one/two-letter fragments.
func significantTokens(text string) []string {
	tokens := tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) <= 2 {
			continue
		}
		if _, stop := scoreStopwords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}

type clipText struct {
	titleTokens map[string]struct{}
	tokens      map[string]struct{}
}

func buildClipText(c domain.Candidate) clipText {
	parts := make([]string, 0, 8)
	parts = append(parts, c.Title)
	parts = append(parts, c.Tags...)
	if c.Detail != nil {
		parts = append(parts, c.Detail.Description, c.Detail.Location)
		parts = append(parts, c.Detail.Keywords...)
	}

	all := make(map[string]struct{})
	for _, part := range parts {
		for _, token := range tokenize(part) {
			all[token] = struct{}{}
		}
	}
	title := make(map[string]struct{})
	for _, token := range tokenize(c.Title) {
		title[token] = struct{}{}
	}
	return clipText{titleTokens: title, tokens: all}
}

type targetText struct {
	mode          domain.SegmentMode
	personTokens  []string
	countryTokens []string
	mustShow      [][]string
	keyVisuals    [][]string
	subjectWords  []string
	subjectSet    map[string]struct{}
}

func buildTargetText(target domain.SemanticTarget) targetText {
	tt := targetText{
		mode:          target.Mode,
		personTokens:  significantTokens(target.PersonName),
		countryTokens: significantTokens(target.Country),
		subjectSet:    make(map[string]struct{}),
	}
	for _, phrase := range target.MustShow {
		if tokens := significantTokens(phrase); len(tokens) > 0 {
			tt.mustShow = append(tt.mustShow, tokens)
		}
	}
	for _, phrase := range target.KeyVisuals {
		if tokens := significantTokens(phrase); len(tokens) > 0 {
			tt.keyVisuals = append(tt.keyVisuals, tokens)
		}
	}
	for _, group := range [][][]string{tt.mustShow, tt.keyVisuals} {
		for _, phrase := range group {
			for _, token := range phrase {
				if _, dup := tt.subjectSet[token]; dup {
					continue
				}
				tt.subjectSet[token] = struct{}{}
				tt.subjectWords = append(tt.subjectWords, token)
			}
		}
	}
	return tt
}

// ---------------------------------------------------------------------------
// Set helpers
// ---------------------------------------------------------------------------

func allTokensIn(tokens []string, set map[string]struct{}) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		if _, ok := set[token]; !ok {
			return false
		}
	}
	return true
}

func anyTokenInSet(tokens []string, set map[string]struct{}) bool {
	for _, token := range tokens {
		if _, ok := set[token]; ok {
			return true
		}
	}
	return false
}

func overlapCount(tokens []string, set map[string]struct{}) int {
	matched := 0
	for _, token := range tokens {
		if _, ok := set[token]; ok {
			matched++
		}
	}
	return matched
}

func clusterAligned(dc domain.DomainCluster, subject map[string]struct{}) bool {
	for _, trigger := range dc.Triggers {
		if _, ok := subject[trigger]; ok {
			return true
		}
	}
	return false
}

func clusterVocabulary(dc domain.DomainCluster) []string {
	seen := make(map[string]struct{})
	var vocab []string
	for _, source := range [][]string{dc.Triggers, dc.Visuals} {
		for _, entry := range source {
			for _, token := range significantTokens(entry) {
				if _, dup := seen[token]; dup {
					continue
				}
				seen[token] = struct{}{}
				vocab = append(vocab, token)
			}
		}
	}
	return vocab
}

func scoreFlag(name string, points float64) string {
	return fmt.Sprintf("%s%+.0f", name, points)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
