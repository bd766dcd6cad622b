package extraction

import (
	"sort"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// Schemas follow the strict structured-output rules: every property is
// required and nullable, and objects reject unknown keys. The same map is
// sent to the model and compiled for local validation.

func nullableString(description string) map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "description": description}
}

func nullableNumber(description string) map[string]any {
	return map[string]any{"type": []any{"number", "null"}, "description": description}
}

func nullableStringList(description string) map[string]any {
	return map[string]any{
		"type":        []any{"array", "null"},
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func nullableList(item map[string]any, description string) map[string]any {
	return map[string]any{
		"type":        []any{"array", "null"},
		"items":       item,
		"description": description,
	}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for key := range props {
		required = append(required, key)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func ktpSchema() map[string]any {
	return object(map[string]any{
		"nik":            nullableString("16 digit NIK exactly as printed"),
		"name":           nullableString("full name"),
		"birth_place":    nullableString("place of birth (tempat lahir)"),
		"birth_date":     nullableString("date of birth as YYYY-MM-DD"),
		"gender":         nullableString("jenis kelamin as printed"),
		"address":        nullableString("street address (alamat)"),
		"rt_rw":          nullableString("RT/RW"),
		"village":        nullableString("kelurahan/desa"),
		"district":       nullableString("kecamatan"),
		"city":           nullableString("kabupaten/kota"),
		"province":       nullableString("provinsi"),
		"religion":       nullableString("agama"),
		"marital_status": nullableString("status perkawinan"),
		"occupation":     nullableString("pekerjaan"),
		"nationality":    nullableString("kewarganegaraan"),
	})
}

func familyMemberSchema() map[string]any {
	return object(map[string]any{
		"name":           nullableString("member full name"),
		"nik":            nullableString("member NIK"),
		"gender":         nullableString("jenis kelamin"),
		"relationship":   nullableString("hubungan dalam keluarga"),
		"birth_date":     nullableString("date of birth as YYYY-MM-DD"),
		"religion":       nullableString("agama"),
		"education":      nullableString("pendidikan"),
		"occupation":     nullableString("jenis pekerjaan"),
		"marital_status": nullableString("status perkawinan"),
		"blood_type":     nullableString("golongan darah"),
	})
}

func kkSchema() map[string]any {
	return object(map[string]any{
		"family_head_name": nullableString("nama kepala keluarga"),
		"family_number":    nullableString("nomor KK"),
		"address":          nullableString("alamat"),
		"rt_rw":            nullableString("RT/RW"),
		"village":          nullableString("desa/kelurahan"),
		"district":         nullableString("kecamatan"),
		"city":             nullableString("kabupaten/kota"),
		"province":         nullableString("provinsi"),
		"postal_code":      nullableString("kode pos"),
		"family_members":   nullableList(familyMemberSchema(), "every listed family member"),
	})
}

func bukuTabunganSchema() map[string]any {
	return object(map[string]any{
		"account_holder_name": nullableString("nama pemilik rekening"),
		"account_number":      nullableString("nomor rekening, digits only as printed"),
		"bank_name":           nullableString("bank name"),
		"branch_name":         nullableString("kantor cabang"),
		"account_type":        nullableString("jenis tabungan"),
	})
}

func ijazahSchema() map[string]any {
	return object(map[string]any{
		"holder_name":        nullableString("graduate full name"),
		"birth_place":        nullableString("tempat lahir"),
		"birth_date":         nullableString("date of birth as YYYY-MM-DD"),
		"institution_name":   nullableString("issuing school or university"),
		"education_level":    nullableString("jenjang, e.g. SMA, S1, S2"),
		"major":              nullableString("program studi / jurusan"),
		"graduation_date":    nullableString("graduation date as YYYY-MM-DD"),
		"certificate_number": nullableString("nomor ijazah"),
	})
}

func npwpSchema() map[string]any {
	return object(map[string]any{
		"npwp_number":     nullableString("NPWP number as printed"),
		"name":            nullableString("taxpayer name"),
		"nik":             nullableString("NIK if printed"),
		"address":         nullableString("registered address"),
		"registered_date": nullableString("tanggal terdaftar as YYYY-MM-DD"),
		"tax_office":      nullableString("KPP name"),
	})
}

// offeringLetterSchema has no is_signed: the signature flag comes from
// layout analysis, never from the model.
func offeringLetterSchema() map[string]any {
	return object(map[string]any{
		"candidate_name": nullableString("name of the person the offer is addressed to"),
		"position":       nullableString("offered position"),
		"start_date":     nullableString("start date as YYYY-MM-DD"),
		"salary":         nullableString("salary exactly as written, including currency and period"),
		"benefits":       nullableStringList("listed benefits"),
	})
}

func invoiceLineSchema() map[string]any {
	return object(map[string]any{
		"name":                nullableString("item description"),
		"quantity":            nullableNumber("quantity"),
		"unit_price":          nullableNumber("unit price"),
		"tax_percentage":      nullableNumber("tax percent"),
		"discount_percentage": nullableNumber("discount percent"),
		"extended_price":      nullableNumber("line total"),
	})
}

func invoiceSchema() map[string]any {
	currency := nullableString("ISO 4217 currency code")
	currency["pattern"] = `^[A-Z]{3}$`
	return object(map[string]any{
		"invoice_id":       nullableString("internal invoice id if printed"),
		"invoice_number":   nullableString("invoice number"),
		"urn":              nullableString("unique reference number"),
		"project_number":   nullableString("project number"),
		"invoice_date":     nullableString("invoice date as YYYY-MM-DD"),
		"due_date":         nullableString("due date as YYYY-MM-DD"),
		"invoice_detail":   nullableList(invoiceLineSchema(), "line items"),
		"sub_total_amount": nullableNumber("subtotal before tax"),
		"vat_percentage":   nullableNumber("VAT percent"),
		"vat_amount":       nullableNumber("VAT amount"),
		"discount_amount":  nullableNumber("discount amount"),
		"wht_percentage":   nullableNumber("withholding tax percent"),
		"wht_amount":       nullableNumber("withholding tax amount"),
		"total_amount":     nullableNumber("grand total"),
		"currency":         currency,
	})
}

func taxInvoiceLineSchema() map[string]any {
	return object(map[string]any{
		"item_code":    nullableString("kode barang"),
		"item_name":    nullableString("nama barang/jasa"),
		"price":        nullableNumber("harga satuan"),
		"quantity":     nullableNumber("jumlah"),
		"tax_base_wht": nullableNumber("harga jual / dasar pengenaan per line"),
	})
}

func taxInvoiceSchema() map[string]any {
	return object(map[string]any{
		"tax_invoice_number":       nullableString("nomor seri faktur pajak"),
		"invoice_number":           nullableString("referenced commercial invoice number"),
		"urn":                      nullableString("unique reference number"),
		"tax_invoice_date":         nullableString("tanggal faktur as YYYY-MM-DD"),
		"seller_name":              nullableString("nama pengusaha kena pajak"),
		"seller_address":           nullableString("alamat pengusaha kena pajak"),
		"seller_npwp":              nullableString("NPWP pengusaha kena pajak"),
		"buyer_name":               nullableString("nama pembeli"),
		"buyer_address":            nullableString("alamat pembeli"),
		"buyer_npwp":               nullableString("NPWP pembeli"),
		"buyer_nik":                nullableString("NIK pembeli"),
		"buyer_passport_number":    nullableString("nomor paspor pembeli"),
		"buyer_email":              nullableString("email pembeli"),
		"tax_invoice_detail":       nullableList(taxInvoiceLineSchema(), "line items"),
		"total_tax_base_wht":       nullableNumber("total harga jual / penggantian / uang muka / termin"),
		"price_discount":           nullableNumber("dikurangi potongan harga"),
		"advance_payment_received": nullableNumber("dikurangi uang muka yang telah diterima"),
		"dasar_pengenaan_pajak":    nullableNumber("dasar pengenaan pajak"),
		"jumlah_ppn":               nullableNumber("total PPN"),
		"jumlah_ppnbm":             nullableNumber("total PPnBM"),
	})
}

func ledgerEntrySchema() map[string]any {
	return object(map[string]any{
		"transaction_date": nullableString("posting date as YYYY-MM-DD"),
		"account_number":   nullableString("account code"),
		"account_name":     nullableString("account name"),
		"description":      nullableString("entry description"),
		"reference":        nullableString("journal or document reference"),
		"debit":            nullableNumber("debit amount"),
		"credit":           nullableNumber("credit amount"),
	})
}

func generalLedgerSchema() map[string]any {
	return object(map[string]any{
		"urn":          nullableString("unique reference number"),
		"company_name": nullableString("company the ledger belongs to"),
		"period_start": nullableString("period start as YYYY-MM-DD"),
		"period_end":   nullableString("period end as YYYY-MM-DD"),
		"currency":     nullableString("ISO 4217 currency code"),
		"entries":      nullableList(ledgerEntrySchema(), "ledger lines"),
		"total_debit":  nullableNumber("total debit"),
		"total_credit": nullableNumber("total credit"),
	})
}

func resumeEducationSchema() map[string]any {
	return object(map[string]any{
		"institution_name": nullableString("school or university"),
		"level_degree":     nullableString("degree level such as SMA, D3, S1, S2"),
		"area_of_study":    nullableString("major or field of study"),
		"start_date":       nullableString("start date as YYYY-MM-DD or YYYY-MM"),
		"completion_date":  nullableString("completion date as YYYY-MM-DD or YYYY-MM"),
	})
}

func resumeWorkSchema() map[string]any {
	return object(map[string]any{
		"company_name":        nullableString("employer name"),
		"position":            nullableString("job title"),
		"industry":            nullableString("employer industry"),
		"years_of_experience": nullableNumber("years spent in this role"),
		"start_date":          nullableString("start date as YYYY-MM-DD or YYYY-MM"),
		"end_date":            nullableString("end date as YYYY-MM-DD or YYYY-MM, null when current"),
		"work_model":          nullableString("onsite, remote or hybrid"),
		"employment_type":     nullableString("full-time, part-time, contract or internship"),
	})
}

func resumeSchema() map[string]any {
	return object(map[string]any{
		"first_name":                nullableString("first name"),
		"middle_name":               nullableString("middle name"),
		"last_name":                 nullableString("last name"),
		"gender":                    nullableString("gender if stated"),
		"email":                     nullableString("email address"),
		"phone_number":              nullableString("phone number as written"),
		"country":                   nullableString("country of residence"),
		"city":                      nullableString("city of residence"),
		"address":                   nullableString("street address"),
		"postal_code":               nullableString("postal code"),
		"birth_date":                nullableString("date of birth as YYYY-MM-DD"),
		"current_employer":          nullableString("current employer"),
		"linkedin_url":              nullableString("LinkedIn profile URL"),
		"highest_degree":            nullableString("highest completed degree level"),
		"total_years_of_experience": nullableNumber("total years of professional experience"),
		"skills":                    nullableStringList("skills, one per item"),
		"education_history":         nullableList(resumeEducationSchema(), "education entries, most recent first"),
		"work_history":              nullableList(resumeWorkSchema(), "work entries, most recent first"),
	})
}

// SchemaFor returns the extraction schema for t, or nil when t has none.
func SchemaFor(t domain.DocumentType) map[string]any {
	switch t {
	case domain.DocumentKTP:
		return ktpSchema()
	case domain.DocumentKK:
		return kkSchema()
	case domain.DocumentBukuTabungan:
		return bukuTabunganSchema()
	case domain.DocumentIjazah:
		return ijazahSchema()
	case domain.DocumentNPWP:
		return npwpSchema()
	case domain.DocumentSignedOfferLetter:
		return offeringLetterSchema()
	case domain.DocumentInvoice:
		return invoiceSchema()
	case domain.DocumentTaxInvoice:
		return taxInvoiceSchema()
	case domain.DocumentGeneralLedger:
		return generalLedgerSchema()
	case domain.DocumentResume:
		return resumeSchema()
	default:
		return nil
	}
}

func classificationSchema(categories []domain.DocumentType) map[string]any {
	labels := make([]any, 0, len(categories)+1)
	for _, c := range categories {
		labels = append(labels, string(c))
	}
	labels = append(labels, string(domain.DocumentUnknown))
	return object(map[string]any{
		"category":   map[string]any{"type": "string", "enum": labels},
		"confidence": map[string]any{"type": "number"},
	})
}
