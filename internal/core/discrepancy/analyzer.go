package discrepancy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/normalize"
)

type valueKind int

const (
	kindText valueKind = iota
	kindName
	kindDate
	kindGender
	kindDigits
	kindAmount
)

type fieldRule struct {
	category string
	severity domain.Severity
	kind     valueKind
}

// Field names are the stored camelCase names so that a discrepancy points at
// the same key a reader sees in the record.
var rules = map[string]fieldRule{
	"name":          {category: "Personal Information", severity: domain.SeverityMedium, kind: kindName},
	"dateOfBirth":   {category: "Personal Information", severity: domain.SeverityHigh, kind: kindDate},
	"birthPlace":    {category: "Personal Information", severity: domain.SeverityLow, kind: kindText},
	"gender":        {category: "Personal Information", severity: domain.SeverityMedium, kind: kindGender},
	"nik":           {category: "Identity", severity: domain.SeverityHigh, kind: kindDigits},
	"npwp":          {category: "Tax", severity: domain.SeverityHigh, kind: kindDigits},
	"position":      {category: "Employment", severity: domain.SeverityLow, kind: kindText},
	"urn":           {category: "Tax", severity: domain.SeverityHigh, kind: kindText},
	"invoiceNumber": {category: "Tax", severity: domain.SeverityMedium, kind: kindText},
	"taxBase":       {category: "Tax", severity: domain.SeverityMedium, kind: kindAmount},
	"vatAmount":     {category: "Tax", severity: domain.SeverityHigh, kind: kindAmount},
}

// fieldOrder fixes iteration so output does not depend on map order.
var fieldOrder = []string{
	"name", "dateOfBirth", "birthPlace", "gender", "nik", "npwp", "position",
	"urn", "invoiceNumber", "taxBase", "vatAmount",
}

type fact struct {
	field string
	ref   domain.DiscrepancyRef
}

// Analyzer flags direct conflicts between values that describe the same
// fact. It is deterministic: equal inputs always give an equal, sorted list.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze compares the profile before and after an update, then every source
// inside after (profile and legal documents) against each other. before may
// be nil for a snapshot with no history.
func (a *Analyzer) Analyze(before, after *domain.Entity) []domain.Discrepancy {
	if after == nil {
		return []domain.Discrepancy{}
	}
	out := make([]domain.Discrepancy, 0)
	if before != nil {
		prev := indexFacts(profileFacts(before, "previous"))
		curr := indexFacts(profileFacts(after, "current"))
		for _, field := range fieldOrder {
			for _, p := range prev[field] {
				for _, c := range curr[field] {
					if d, ok := compare(field, p, c); ok {
						out = append(out, d)
					}
				}
			}
		}
	}

	sources := profileFacts(after, "profile")
	sources = append(sources, documentFacts(after)...)
	byField := indexFacts(sources)
	for _, field := range fieldOrder {
		facts := byField[field]
		for i := 0; i < len(facts); i++ {
			for j := i + 1; j < len(facts); j++ {
				if facts[i].ref.Type == facts[j].ref.Type && facts[i].ref.Name == facts[j].ref.Name {
					continue
				}
				if d, ok := compare(field, facts[i], facts[j]); ok {
					out = append(out, d)
				}
			}
		}
	}
	return dedupeAndSort(out)
}

func compare(field string, source, target fact) (domain.Discrepancy, bool) {
	rule := rules[field]
	if same(rule.kind, source.ref.Value, target.ref.Value) {
		return domain.Discrepancy{}, false
	}
	return domain.Discrepancy{
		Category: rule.category,
		Field:    field,
		Severity: rule.severity,
		Note: fmt.Sprintf("%s differs: %s %s has %q, %s %s has %q",
			field, source.ref.Type, source.ref.Name, source.ref.Value,
			target.ref.Type, target.ref.Name, target.ref.Value),
		Source: source.ref,
		Target: target.ref,
	}, true
}

func same(kind valueKind, a, b string) bool {
	switch kind {
	case kindDate:
		return normalize.Date(a) == normalize.Date(b)
	case kindName:
		return sameName(a, b)
	case kindGender:
		return normalize.Gender(a) == normalize.Gender(b)
	case kindDigits:
		da, db := normalize.Digits(a), normalize.Digits(b)
		if da == "" || db == "" {
			return normalize.Text(a) == normalize.Text(b)
		}
		return da == db
	case kindAmount:
		x, okA := normalize.Amount(a)
		y, okB := normalize.Amount(b)
		if !okA || !okB {
			return normalize.Text(a) == normalize.Text(b)
		}
		return x.Equal(y)
	default:
		return normalize.Text(a) == normalize.Text(b)
	}
}

// sameName treats a name as matching when every word of the shorter form
// appears in the longer one, so "Siti Nurhaliza" matches
// "SITI NURHALIZA BINTI AHMAD".
func sameName(a, b string) bool {
	na, nb := normalize.Name(a), normalize.Name(b)
	if na == nb {
		return true
	}
	wa, wb := strings.Fields(na), strings.Fields(nb)
	if len(wa) > len(wb) {
		wa, wb = wb, wa
	}
	if len(wa) == 0 {
		return false
	}
	words := make(map[string]struct{}, len(wb))
	for _, w := range wb {
		words[w] = struct{}{}
	}
	for _, w := range wa {
		if _, ok := words[w]; !ok {
			return false
		}
	}
	return true
}

func indexFacts(facts []fact) map[string][]fact {
	out := make(map[string][]fact, len(facts))
	for _, f := range facts {
		out[f.field] = append(out[f.field], f)
	}
	return out
}

func dedupeAndSort(in []domain.Discrepancy) []domain.Discrepancy {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Discrepancy, 0, len(in))
	for _, d := range in {
		key := strings.Join([]string{d.Field, d.Source.Type, d.Source.Name, d.Target.Type, d.Target.Name}, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Source.Type != b.Source.Type {
			return a.Source.Type < b.Source.Type
		}
		if a.Source.Name != b.Source.Name {
			return a.Source.Name < b.Source.Name
		}
		if a.Target.Type != b.Target.Type {
			return a.Target.Type < b.Target.Type
		}
		return a.Target.Name < b.Target.Name
	})
	return out
}
