package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// rerankOverfetch widens the vector search ahead of the lexical pass.
const rerankOverfetch = 2

// rerankCandidates orders matches by a blend of normalized vector score,
// overlap between the job's skill terms and the candidate profile, and a
// position title hit. Match scores keep their index similarity.
func rerankCandidates(query domain.JobQuery, matches []domain.CandidateMatch, limit int) []domain.CandidateMatch {
	if len(matches) == 0 {
		return matches
	}
	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}

	skillTokens := toTokenSet(query.Skills + " " + query.Education)
	titleTokens := toTokenSet(query.Title)

	minScore, maxScore := matches[0].Score, matches[0].Score
	for _, m := range matches[1:] {
		if m.Score < minScore {
			minScore = m.Score
		}
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}
	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	type ranked struct {
		match domain.CandidateMatch
		rank  float64
	}
	out := make([]ranked, 0, len(matches))
	for _, m := range matches {
		profile := toTokenSet(candidateText(m.Candidate))
		position := ""
		if m.Candidate.Position != nil {
			position = *m.Candidate.Position
		}
		out = append(out, ranked{
			match: m,
			rank:  0.60*normalize(m.Score) + 0.30*tokenOverlap(skillTokens, profile) + 0.10*titleHit(titleTokens, position),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rank != out[j].rank {
			return out[i].rank > out[j].rank
		}
		return out[i].match.Candidate.ID < out[j].match.Candidate.ID
	})

	result := make([]domain.CandidateMatch, 0, limit)
	for _, r := range out[:limit] {
		result = append(result, r.match)
	}
	return result
}

func tokenOverlap(query, profile map[string]struct{}) float64 {
	if len(query) == 0 || len(profile) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := profile[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func titleHit(title map[string]struct{}, position string) float64 {
	if len(title) == 0 || position == "" {
		return 0
	}
	position = strings.ToLower(position)
	for token := range title {
		if strings.Contains(position, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
