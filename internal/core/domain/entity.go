package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type EntityKind string

const (
	EntityCandidate EntityKind = "candidate"
	EntityEmployee  EntityKind = "employee"
	EntityTaxFiling EntityKind = "tax_filing"
)

func ParseEntityKind(raw string) (EntityKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "candidate", "candidates":
		return EntityCandidate, true
	case "employee", "employees":
		return EntityEmployee, true
	case "tax_filing", "tax-filing", "tax-filings", "tax_filings":
		return EntityTaxFiling, true
	default:
		return "", false
	}
}

// ExternalIDKey is the storage field holding the kind's business identifier.
func (k EntityKind) ExternalIDKey() string {
	switch k {
	case EntityCandidate:
		return "candidateId"
	case EntityEmployee:
		return "employeeId"
	case EntityTaxFiling:
		return "filingId"
	default:
		return "externalId"
	}
}

// DocumentTypes is the classification scope for documents uploaded to an
// entity of this kind.
func (k EntityKind) DocumentTypes() []DocumentType {
	switch k {
	case EntityTaxFiling:
		return []DocumentType{DocumentInvoice, DocumentTaxInvoice, DocumentGeneralLedger}
	case EntityCandidate, EntityEmployee:
		return []DocumentType{DocumentKTP, DocumentKK, DocumentIjazah, DocumentBukuTabungan, DocumentNPWP, DocumentSignedOfferLetter}
	default:
		return nil
	}
}

type Address struct {
	Detail   *string `json:"detail"`
	City     *string `json:"city"`
	Province *string `json:"province"`
	Country  *string `json:"country"`
	Zip      *string `json:"zip"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type DiscrepancyRef struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Discrepancy struct {
	Category string         `json:"category"`
	Field    string         `json:"field"`
	Severity Severity       `json:"severity"`
	Note     string         `json:"note"`
	Source   DiscrepancyRef `json:"source"`
	Target   DiscrepancyRef `json:"target"`
}

// Entity is a snapshot of a candidate, employee or tax filing. Extra holds
// stored keys the typed model does not know, keyed by their stored name.
type Entity struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id" validate:"required"`
	Kind       EntityKind `json:"kind" validate:"required,oneof=candidate employee tax_filing"`
	Version    int64      `json:"version"`

	Name        string   `json:"name" validate:"required,max=200"`
	Email       *string  `json:"email" validate:"omitempty,email"`
	Phone       *string  `json:"phone" validate:"omitempty,max=32"`
	Gender      *string  `json:"gender"`
	DateOfBirth *string  `json:"date_of_birth" validate:"omitempty,loosedate"`
	BirthPlace  *string  `json:"birth_place"`
	NIK         *string  `json:"nik" validate:"omitempty,numeric,len=16"`
	Address     *Address `json:"address"`
	Position    *string  `json:"position"`
	Department  *string  `json:"department"`
	Status      *string  `json:"status"`
	AppliedDate *string  `json:"applied_date" validate:"omitempty,loosedate"`
	JoinedDate  *string  `json:"joined_date" validate:"omitempty,loosedate"`
	Skills      []string `json:"skills"`
	Notes       *string  `json:"notes"`

	NPWP      *string `json:"npwp"`
	URN       *string `json:"urn"`
	TaxPeriod *string `json:"tax_period"`

	LegalDocuments LegalDocuments `json:"legal_documents"`
	Discrepancies  []Discrepancy  `json:"discrepancies"`

	Extra map[string]json.RawMessage `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// stored is the record the entity was decoded from. Encoding lays the
	// typed fields over it so nested keys the model does not know survive.
	stored json.RawMessage
}

// Clone returns a copy that shares no slices or maps with e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Address != nil {
		addr := *e.Address
		out.Address = &addr
	}
	out.Skills = append([]string(nil), e.Skills...)
	out.LegalDocuments = e.LegalDocuments.Clone()
	out.Discrepancies = append([]Discrepancy(nil), e.Discrepancies...)
	out.Extra = cloneRaw(e.Extra)
	return &out
}

// EntityPatch is a partial update. Nil fields leave the stored value alone.
type EntityPatch struct {
	Name           *string    `json:"name"`
	Email          *string    `json:"email"`
	Phone          *string    `json:"phone"`
	Gender         *string    `json:"gender"`
	DateOfBirth    *string    `json:"date_of_birth"`
	BirthPlace     *string    `json:"birth_place"`
	NIK            *string    `json:"nik"`
	Address        *Address   `json:"address"`
	Position       *string    `json:"position"`
	Department     *string    `json:"department"`
	Status         *string    `json:"status"`
	AppliedDate    *string    `json:"applied_date"`
	JoinedDate     *string    `json:"joined_date"`
	Skills         []string   `json:"skills"`
	Notes          *string    `json:"notes"`
	NPWP           *string    `json:"npwp"`
	URN            *string    `json:"urn"`
	TaxPeriod      *string    `json:"tax_period"`
	LegalDocuments []Document `json:"legal_documents"`
}

func (p EntityPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Gender == nil &&
		p.DateOfBirth == nil && p.BirthPlace == nil && p.NIK == nil && p.Address == nil &&
		p.Position == nil && p.Department == nil && p.Status == nil && p.AppliedDate == nil &&
		p.JoinedDate == nil && p.Skills == nil && p.Notes == nil && p.NPWP == nil &&
		p.URN == nil && p.TaxPeriod == nil && len(p.LegalDocuments) == 0
}

type EntityFilter struct {
	Kind     EntityKind
	Status   string
	Position string
	URN      string
	Limit    int
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
