package extraction

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const maxSnippet = 12000

// snippet caps prompt text at maxSnippet runes.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxSnippet {
		return text
	}
	return string([]rune(text)[:maxSnippet])
}

var categoryHints = map[domain.DocumentType]string{
	domain.DocumentKTP:               "Indonesian national identity card (Kartu Tanda Penduduk) with NIK, name, birth place/date and address.",
	domain.DocumentKK:                "Family card (Kartu Keluarga) listing the head of family and every family member.",
	domain.DocumentIjazah:            "School or university diploma (Ijazah).",
	domain.DocumentBukuTabungan:      "Bank savings book cover page (Buku Tabungan) with account holder and number.",
	domain.DocumentNPWP:              "Tax registration card (Nomor Pokok Wajib Pajak).",
	domain.DocumentSignedOfferLetter: "Employment offering letter stating position, start date and salary.",
	domain.DocumentInvoice:           "Commercial invoice with vendor details, line items, totals and payment terms.",
	domain.DocumentTaxInvoice:        "Tax invoice (Faktur Pajak) with NPWP, PPN and PPnBM amounts. Usually has \"Faktur Pajak\" written on it.",
	domain.DocumentGeneralLedger:     "General ledger listing debits and credits across accounts.",
}

func classificationInstructions(categories []domain.DocumentType) string {
	var b strings.Builder
	b.WriteString("You are a document classifier for HR and tax documents.\n")
	b.WriteString("Classify the document into exactly one category:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", c, categoryHints[c])
	}
	b.WriteString(`- Unknown: anything that does not clearly fit a category above.

Return strict JSON object with keys:
category (string, one of the labels above), confidence (number from 0 to 1).
No markdown, no extra keys.
If unsure, answer Unknown. Do not guess.`)
	return b.String()
}

var extractionHints = map[domain.DocumentType]string{
	domain.DocumentKTP:               "Extract the identity card fields. NIK must be copied digit by digit.",
	domain.DocumentKK:                "Extract the family card header and one entry per family member row.",
	domain.DocumentIjazah:            "Extract the diploma holder and issuing institution fields.",
	domain.DocumentBukuTabungan:      "Extract the savings account holder and account fields.",
	domain.DocumentNPWP:              "Extract the taxpayer registration fields.",
	domain.DocumentSignedOfferLetter: "Extract the offer terms: candidate, position, start date, salary and benefits.",
	domain.DocumentInvoice:           "Extract the invoice header, each line item and the totals. Amounts are plain numbers without thousand separators.",
	domain.DocumentTaxInvoice:        "Extract the faktur pajak seller, buyer, line items and tax totals. Amounts are plain numbers without thousand separators.",
	domain.DocumentGeneralLedger:     "Extract the ledger header, every entry and the debit/credit totals. Amounts are plain numbers without thousand separators.",
	domain.DocumentResume:            "Extract the candidate's contact details, skills, education history and work history from the CV.",
}

func extractionInstructions(t domain.DocumentType) string {
	return fmt.Sprintf(`You are an expert extraction engine for %s documents.
%s
Return strict JSON matching the provided schema.
Every key must be present. Use null for any value that is not printed in the document.
Never invent values and never fill defaults. Dates as YYYY-MM-DD when the day is known.
No markdown.`, t, extractionHints[t])
}
