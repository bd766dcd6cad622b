package discrepancy

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/normalize"
)

const profileSource = "Profile"

func profileFacts(e *domain.Entity, name string) []fact {
	var facts []fact
	add := func(field string, value *string) {
		if v := deref(value); v != "" {
			facts = append(facts, fact{field: field, ref: domain.DiscrepancyRef{Type: profileSource, Name: name, Value: v}})
		}
	}
	if strings.TrimSpace(e.Name) != "" {
		add("name", &e.Name)
	}
	add("dateOfBirth", e.DateOfBirth)
	add("birthPlace", e.BirthPlace)
	add("gender", e.Gender)
	add("nik", e.NIK)
	add("npwp", e.NPWP)
	add("position", e.Position)
	add("urn", e.URN)
	return facts
}

func documentFacts(e *domain.Entity) []fact {
	var facts []fact
	for _, doc := range e.LegalDocuments {
		ref := func(field string, value *string) {
			if v := deref(value); v != "" {
				facts = append(facts, fact{field: field, ref: domain.DiscrepancyRef{Type: string(doc.Type), Name: docName(doc), Value: v}})
			}
		}
		amount := func(field string, value decimal.NullDecimal) {
			if value.Valid {
				s := value.Decimal.String()
				ref(field, &s)
			}
		}

		switch data := doc.ExtractedContent.StructuredData.(type) {
		case domain.KTP:
			ref("name", data.Name)
			ref("dateOfBirth", data.BirthDate)
			ref("birthPlace", data.BirthPlace)
			ref("gender", data.Gender)
			ref("nik", data.NIK)
		case domain.KartuKeluarga:
			if member, ok := matchMember(e, data.FamilyMembers); ok {
				ref("name", member.Name)
				ref("dateOfBirth", member.BirthDate)
				ref("gender", member.Gender)
				ref("nik", member.NIK)
			}
		case domain.Ijazah:
			ref("name", data.HolderName)
			ref("dateOfBirth", data.BirthDate)
			ref("birthPlace", data.BirthPlace)
		case domain.NPWP:
			ref("name", data.Name)
			ref("nik", data.NIK)
			ref("npwp", data.NPWPNumber)
		case domain.BukuTabungan:
			ref("name", data.AccountHolderName)
		case domain.OfferingLetter:
			ref("name", data.CandidateName)
			ref("position", data.Position)
		case domain.Resume:
			full := data.FullName()
			ref("name", &full)
			ref("dateOfBirth", data.BirthDate)
		case domain.Invoice:
			ref("urn", data.URN)
			ref("invoiceNumber", data.InvoiceNumber)
			amount("taxBase", data.SubTotal)
			amount("vatAmount", data.VATAmount)
		case domain.TaxInvoice:
			ref("urn", data.URN)
			ref("invoiceNumber", data.InvoiceNumber)
			amount("taxBase", data.TotalTaxBaseWHT)
			amount("vatAmount", data.PPNAmount)
		case domain.GeneralLedger:
			ref("urn", data.URN)
		}
	}
	return facts
}

// matchMember finds the family card row describing the entity itself: by NIK
// from the profile or a KTP first, then by name.
func matchMember(e *domain.Entity, members []domain.FamilyMember) (domain.FamilyMember, bool) {
	niks := []string{normalize.Digits(deref(e.NIK))}
	if doc, ok := e.LegalDocuments.ByType(domain.DocumentKTP); ok {
		if ktp, ok := doc.ExtractedContent.StructuredData.(domain.KTP); ok {
			niks = append(niks, normalize.Digits(deref(ktp.NIK)))
		}
	}
	for _, nik := range niks {
		if nik == "" {
			continue
		}
		for _, m := range members {
			if normalize.Digits(deref(m.NIK)) == nik {
				return m, true
			}
		}
	}
	name := normalize.Name(e.Name)
	if name == "" {
		return domain.FamilyMember{}, false
	}
	for _, m := range members {
		if normalize.Name(deref(m.Name)) == name {
			return m, true
		}
	}
	return domain.FamilyMember{}, false
}

func docName(doc domain.Document) string {
	if doc.Name != "" {
		return doc.Name
	}
	return string(doc.Type)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
