package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StructuredData is the typed result of extracting one document type.
// Every field that the document may not carry is a pointer or a nullable
// decimal so that absent values stay null instead of looking like data.
type StructuredData interface {
	DocumentType() DocumentType
}

// EmptyData is the structured data of a document that was not recognised.
type EmptyData struct{}

func (EmptyData) DocumentType() DocumentType { return DocumentUnknown }

func (EmptyData) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }

// OpaqueData keeps structured data of a stored document whose type this
// service does not model, so it survives a read-modify-write unchanged.
type OpaqueData struct {
	Type DocumentType
	Raw  json.RawMessage
}

func (d OpaqueData) DocumentType() DocumentType { return d.Type }

func (d OpaqueData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("{}"), nil
	}
	return d.Raw, nil
}

type KTP struct {
	NIK           *string `json:"nik"`
	Name          *string `json:"name"`
	BirthPlace    *string `json:"birth_place"`
	BirthDate     *string `json:"birth_date"`
	Gender        *string `json:"gender"`
	Address       *string `json:"address"`
	RTRW          *string `json:"rt_rw"`
	Village       *string `json:"village"`
	District      *string `json:"district"`
	City          *string `json:"city"`
	Province      *string `json:"province"`
	Religion      *string `json:"religion"`
	MaritalStatus *string `json:"marital_status"`
	Occupation    *string `json:"occupation"`
	Nationality   *string `json:"nationality"`
}

func (KTP) DocumentType() DocumentType { return DocumentKTP }

type FamilyMember struct {
	Name          *string `json:"name"`
	NIK           *string `json:"nik"`
	Gender        *string `json:"gender"`
	Relationship  *string `json:"relationship"`
	BirthDate     *string `json:"birth_date"`
	Religion      *string `json:"religion"`
	Education     *string `json:"education"`
	Occupation    *string `json:"occupation"`
	MaritalStatus *string `json:"marital_status"`
	BloodType     *string `json:"blood_type"`
}

type KartuKeluarga struct {
	FamilyHeadName *string        `json:"family_head_name"`
	FamilyNumber   *string        `json:"family_number"`
	Address        *string        `json:"address"`
	RTRW           *string        `json:"rt_rw"`
	Village        *string        `json:"village"`
	District       *string        `json:"district"`
	City           *string        `json:"city"`
	Province       *string        `json:"province"`
	PostalCode     *string        `json:"postal_code"`
	FamilyMembers  []FamilyMember `json:"family_members"`
}

func (KartuKeluarga) DocumentType() DocumentType { return DocumentKK }

type BukuTabungan struct {
	AccountHolderName *string `json:"account_holder_name"`
	AccountNumber     *string `json:"account_number"`
	BankName          *string `json:"bank_name"`
	BranchName        *string `json:"branch_name"`
	AccountType       *string `json:"account_type"`
}

func (BukuTabungan) DocumentType() DocumentType { return DocumentBukuTabungan }

type Ijazah struct {
	HolderName        *string `json:"holder_name"`
	BirthPlace        *string `json:"birth_place"`
	BirthDate         *string `json:"birth_date"`
	InstitutionName   *string `json:"institution_name"`
	EducationLevel    *string `json:"education_level"`
	Major             *string `json:"major"`
	GraduationDate    *string `json:"graduation_date"`
	CertificateNumber *string `json:"certificate_number"`
}

func (Ijazah) DocumentType() DocumentType { return DocumentIjazah }

type NPWP struct {
	NPWPNumber     *string `json:"npwp_number"`
	Name           *string `json:"name"`
	NIK            *string `json:"nik"`
	Address        *string `json:"address"`
	RegisteredDate *string `json:"registered_date"`
	TaxOffice      *string `json:"tax_office"`
}

func (NPWP) DocumentType() DocumentType { return DocumentNPWP }

type OfferingLetter struct {
	CandidateName *string  `json:"candidate_name"`
	Position      *string  `json:"position"`
	StartDate     *string  `json:"start_date"`
	Salary        *string  `json:"salary"`
	Benefits      []string `json:"benefits"`
	// IsSigned is nil when no layout analysis looked for a signature.
	IsSigned *bool `json:"is_signed"`
}

func (OfferingLetter) DocumentType() DocumentType { return DocumentSignedOfferLetter }

type InvoiceLine struct {
	Name               *string             `json:"name"`
	Quantity           decimal.NullDecimal `json:"quantity"`
	UnitPrice          decimal.NullDecimal `json:"unit_price"`
	TaxPercentage      decimal.NullDecimal `json:"tax_percentage"`
	DiscountPercentage decimal.NullDecimal `json:"discount_percentage"`
	ExtendedPrice      decimal.NullDecimal `json:"extended_price"`
}

type Invoice struct {
	InvoiceID      *string             `json:"invoice_id"`
	InvoiceNumber  *string             `json:"invoice_number"`
	URN            *string             `json:"urn"`
	ProjectNumber  *string             `json:"project_number"`
	InvoiceDate    *string             `json:"invoice_date"`
	DueDate        *string             `json:"due_date"`
	Lines          []InvoiceLine       `json:"invoice_detail"`
	SubTotal       decimal.NullDecimal `json:"sub_total_amount"`
	VATPercentage  decimal.NullDecimal `json:"vat_percentage"`
	VATAmount      decimal.NullDecimal `json:"vat_amount"`
	DiscountAmount decimal.NullDecimal `json:"discount_amount"`
	WHTPercentage  decimal.NullDecimal `json:"wht_percentage"`
	WHTAmount      decimal.NullDecimal `json:"wht_amount"`
	TotalAmount    decimal.NullDecimal `json:"total_amount"`
	Currency       *string             `json:"currency"`
}

func (Invoice) DocumentType() DocumentType { return DocumentInvoice }

type TaxInvoiceLine struct {
	ItemCode   *string             `json:"item_code"`
	ItemName   *string             `json:"item_name"`
	Price      decimal.NullDecimal `json:"price"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	TaxBaseWHT decimal.NullDecimal `json:"tax_base_wht"`
}

// TaxInvoice is an Indonesian faktur pajak. Seller and buyer are the
// "pengusaha" and "pembeli" kena pajak.
type TaxInvoice struct {
	TaxInvoiceNumber *string             `json:"tax_invoice_number"`
	InvoiceNumber    *string             `json:"invoice_number"`
	URN              *string             `json:"urn"`
	TaxInvoiceDate   *string             `json:"tax_invoice_date"`
	SellerName       *string             `json:"seller_name"`
	SellerAddress    *string             `json:"seller_address"`
	SellerNPWP       *string             `json:"seller_npwp"`
	BuyerName        *string             `json:"buyer_name"`
	BuyerAddress     *string             `json:"buyer_address"`
	BuyerNPWP        *string             `json:"buyer_npwp"`
	BuyerNIK         *string             `json:"buyer_nik"`
	BuyerPassport    *string             `json:"buyer_passport_number"`
	BuyerEmail       *string             `json:"buyer_email"`
	Lines            []TaxInvoiceLine    `json:"tax_invoice_detail"`
	TotalTaxBaseWHT  decimal.NullDecimal `json:"total_tax_base_wht"`
	PriceDiscount    decimal.NullDecimal `json:"price_discount"`
	AdvanceReceived  decimal.NullDecimal `json:"advance_payment_received"`
	TaxBase          decimal.NullDecimal `json:"dasar_pengenaan_pajak"`
	PPNAmount        decimal.NullDecimal `json:"jumlah_ppn"`
	PPnBMAmount      decimal.NullDecimal `json:"jumlah_ppnbm"`
}

func (TaxInvoice) DocumentType() DocumentType { return DocumentTaxInvoice }

type LedgerEntry struct {
	TransactionDate *string             `json:"transaction_date"`
	AccountNumber   *string             `json:"account_number"`
	AccountName     *string             `json:"account_name"`
	Description     *string             `json:"description"`
	Reference       *string             `json:"reference"`
	Debit           decimal.NullDecimal `json:"debit"`
	Credit          decimal.NullDecimal `json:"credit"`
}

type GeneralLedger struct {
	URN         *string             `json:"urn"`
	CompanyName *string             `json:"company_name"`
	PeriodStart *string             `json:"period_start"`
	PeriodEnd   *string             `json:"period_end"`
	Currency    *string             `json:"currency"`
	Entries     []LedgerEntry       `json:"entries"`
	TotalDebit  decimal.NullDecimal `json:"total_debit"`
	TotalCredit decimal.NullDecimal `json:"total_credit"`
}

func (GeneralLedger) DocumentType() DocumentType { return DocumentGeneralLedger }

type ResumeEducation struct {
	InstitutionName *string `json:"institution_name"`
	LevelDegree     *string `json:"level_degree"`
	AreaOfStudy     *string `json:"area_of_study"`
	StartDate       *string `json:"start_date"`
	CompletionDate  *string `json:"completion_date"`
}

type ResumeWork struct {
	CompanyName       *string             `json:"company_name"`
	Position          *string             `json:"position"`
	Industry          *string             `json:"industry"`
	YearsOfExperience decimal.NullDecimal `json:"years_of_experience"`
	StartDate         *string             `json:"start_date"`
	EndDate           *string             `json:"end_date"`
	WorkModel         *string             `json:"work_model"`
	EmploymentType    *string             `json:"employment_type"`
}

// Resume is a parsed CV. It feeds the contact and skill fields of a
// candidate; identity fields stay with the identity documents.
type Resume struct {
	FirstName              *string             `json:"first_name"`
	MiddleName             *string             `json:"middle_name"`
	LastName               *string             `json:"last_name"`
	Gender                 *string             `json:"gender"`
	Email                  *string             `json:"email"`
	Phone                  *string             `json:"phone_number"`
	Country                *string             `json:"country"`
	City                   *string             `json:"city"`
	Address                *string             `json:"address"`
	PostalCode             *string             `json:"postal_code"`
	BirthDate              *string             `json:"birth_date"`
	CurrentEmployer        *string             `json:"current_employer"`
	LinkedInURL            *string             `json:"linkedin_url"`
	HighestDegree          *string             `json:"highest_degree"`
	TotalYearsOfExperience decimal.NullDecimal `json:"total_years_of_experience"`
	Skills                 []string            `json:"skills"`
	Education              []ResumeEducation   `json:"education_history"`
	WorkHistory            []ResumeWork        `json:"work_history"`
}

func (Resume) DocumentType() DocumentType { return DocumentResume }

// FullName joins the name parts that were found.
func (r Resume) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{r.FirstName, r.MiddleName, r.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	return strings.Join(parts, " ")
}

// NewStructuredData returns a pointer to the zero variant for t, ready to be
// decoded into. Unknown and unmodelled types return nil.
func NewStructuredData(t DocumentType) StructuredData {
	switch t {
	case DocumentKTP:
		return &KTP{}
	case DocumentKK:
		return &KartuKeluarga{}
	case DocumentBukuTabungan:
		return &BukuTabungan{}
	case DocumentIjazah:
		return &Ijazah{}
	case DocumentNPWP:
		return &NPWP{}
	case DocumentSignedOfferLetter:
		return &OfferingLetter{}
	case DocumentInvoice:
		return &Invoice{}
	case DocumentTaxInvoice:
		return &TaxInvoice{}
	case DocumentGeneralLedger:
		return &GeneralLedger{}
	case DocumentResume:
		return &Resume{}
	default:
		return nil
	}
}

// DecodeStructuredData turns stored or submitted JSON into the variant that
// belongs to t.
func DecodeStructuredData(t DocumentType, raw json.RawMessage) (StructuredData, error) {
	trimmed := bytes.TrimSpace(raw)
	if t == DocumentUnknown {
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
			return EmptyData{}, nil
		}
		return OpaqueData{Type: t, Raw: append(json.RawMessage(nil), trimmed...)}, nil
	}

	target := NewStructuredData(t)
	if target == nil {
		return OpaqueData{Type: t, Raw: append(json.RawMessage(nil), trimmed...)}, nil
	}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DerefStructured(target), nil
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return nil, fmt.Errorf("decode %s structured data: %w", t, err)
	}
	return DerefStructured(target), nil
}

// DerefStructured stores variants by value so type switches stay simple.
func DerefStructured(data StructuredData) StructuredData {
	switch v := data.(type) {
	case *KTP:
		return *v
	case *KartuKeluarga:
		return *v
	case *BukuTabungan:
		return *v
	case *Ijazah:
		return *v
	case *NPWP:
		return *v
	case *OfferingLetter:
		return *v
	case *Invoice:
		return *v
	case *TaxInvoice:
		return *v
	case *GeneralLedger:
		return *v
	case *Resume:
		return *v
	default:
		return data
	}
}

// StructuredMatchesType reports whether data is the variant declared by t.
func StructuredMatchesType(t DocumentType, data StructuredData) bool {
	if data == nil {
		return false
	}
	if opaque, ok := data.(OpaqueData); ok {
		return opaque.Type == t && !t.Known()
	}
	return data.DocumentType() == t
}
