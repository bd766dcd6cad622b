// Package normalize reduces representation variants of profile values
// (date layouts, name spelling, gender wording) to a comparable form.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"20060102",
}

// Indonesian month names and abbreviations that differ from English.
var monthReplacer = strings.NewReplacer(
	"januari", "january",
	"februari", "february",
	"pebruari", "february",
	"maret", "march",
	"mei", "may",
	"juni", "june",
	"juli", "july",
	"agustus", "august",
	"agu", "aug",
	"agt", "aug",
	"oktober", "october",
	"okt", "oct",
	"desember", "december",
	"des", "dec",
)

// ParseDate accepts the date layouts seen on Indonesian identity and HR
// documents. Day-first is assumed for numeric layouts.
func ParseDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	candidates := []string{value}
	if translated := translateMonths(value); translated != value {
		candidates = append(candidates, translated)
	}
	for _, candidate := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

// Date renders raw as YYYY-MM-DD, or returns the trimmed input when it is
// not a recognised date.
func Date(raw string) string {
	if t, ok := ParseDate(raw); ok {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(raw)
}

func translateMonths(value string) string {
	lower := strings.ToLower(value)
	translated := monthReplacer.Replace(lower)
	if translated == lower {
		return value
	}
	// time.Parse wants title case month names.
	words := strings.Fields(strings.NewReplacer("-", " - ", ",", " , ").Replace(translated))
	for i, word := range words {
		if word != "" && unicode.IsLetter(rune(word[0])) {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	joined := strings.Join(words, " ")
	return strings.NewReplacer(" - ", "-", " , ", ",").Replace(joined)
}

var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "ir": {}, "h": {}, "hj": {},
	"bapak": {}, "ibu": {}, "sdr": {}, "sdri": {},
}

// Name folds case, punctuation, whitespace and leading honorifics.
func Name(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(fields) > 1 {
		if _, ok := honorifics[fields[0]]; !ok {
			break
		}
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// Gender maps Indonesian and English spellings to "male" or "female".
func Gender(raw string) string {
	switch strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(raw, "-", " ")), " ")) {
	case "l", "lk", "laki laki", "laki", "pria", "m", "male", "man":
		return "male"
	case "p", "pr", "perempuan", "wanita", "f", "female", "woman":
		return "female"
	default:
		return Text(raw)
	}
}

// Digits keeps only digits, for identifiers printed with separators such as
// NPWP or account numbers.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Text folds case and whitespace.
func Text(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// Amount parses a money or percentage value, tolerating a currency prefix.
func Amount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(raw)
	for _, prefix := range []string{"IDR", "Rp.", "Rp", "USD", "$"} {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
	}
	cleaned = strings.TrimSuffix(cleaned, "%")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
