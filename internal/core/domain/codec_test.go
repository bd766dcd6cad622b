package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDecodeStoredEntityKeepsUnknownFields(t *testing.T) {
	raw := []byte(`{
		"id": "c2b1",
		"candidateId": "cand-001",
		"name": "Siti Nurhaliza",
		"dateOfBirth": "1992-05-15",
		"photoUrl": "https://cdn.example.com/p.png",
		"interview": {"round": 2, "result": "pass"},
		"legalDocuments": [{
			"type": "KTP",
			"name": "ktp.pdf",
			"url": "https://blob/ktp.pdf",
			"lastUpdated": "2024-05-01T10:00:00Z",
			"extractedContent": {
				"content": "NIK 1234567890123456",
				"structuredData": {"nik": "1234567890123456", "name": "Siti Nurhaliza"},
				"boundingBoxes": [{"page": 1, "geometry": [1, 2, 3, 4], "label": "NIK"}]
			}
		}]
	}`)

	entity, err := DecodeStoredEntity(EntityCandidate, raw)
	if err != nil {
		t.Fatalf("DecodeStoredEntity() error = %v", err)
	}
	if entity.ExternalID != "cand-001" {
		t.Fatalf("expected external id cand-001, got %q", entity.ExternalID)
	}
	if entity.DateOfBirth == nil || *entity.DateOfBirth != "1992-05-15" {
		t.Fatalf("unexpected date of birth: %v", entity.DateOfBirth)
	}
	if _, ok := entity.Extra["photoUrl"]; !ok {
		t.Fatalf("expected photoUrl in extra, got %v", entity.Extra)
	}
	if _, ok := entity.Extra["candidateId"]; ok {
		t.Fatalf("external id key must not leak into extra")
	}
	ktp, ok := entity.LegalDocuments[0].ExtractedContent.StructuredData.(KTP)
	if !ok {
		t.Fatalf("expected KTP variant, got %T", entity.LegalDocuments[0].ExtractedContent.StructuredData)
	}
	if ktp.Gender != nil {
		t.Fatalf("missing gender must stay nil, got %q", *ktp.Gender)
	}

	encoded, err := EncodeStoredEntity(entity)
	if err != nil {
		t.Fatalf("EncodeStoredEntity() error = %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		t.Fatalf("decode encoded: %v", err)
	}
	if !strings.Contains(string(fields["interview"]), `"result":"pass"`) {
		t.Fatalf("interview not preserved: %s", fields["interview"])
	}
	for _, key := range []string{"candidateId", "legalDocuments", "dateOfBirth", "photoUrl"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected stored key %q in %s", key, encoded)
		}
	}
	if strings.Contains(string(encoded), `"date_of_birth"`) || strings.Contains(string(encoded), `"legal_documents"`) {
		t.Fatalf("snake_case key leaked into stored form: %s", encoded)
	}
}

func TestStoredEntityRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	entity := &Entity{
		ID:          "f1",
		ExternalID:  "INV-2024-01",
		Kind:        EntityTaxFiling,
		Version:     3,
		Name:        "PT Maju",
		URN:         strPtr("URN-77"),
		TaxPeriod:   strPtr("2024-05"),
		CreatedAt:   now,
		UpdatedAt:   now,
		Skills:      []string{},
		Extra:       map[string]json.RawMessage{"legacyFlag": json.RawMessage(`true`)},
		LegalDocuments: LegalDocuments{{
			Type:        DocumentInvoice,
			Name:        "inv.pdf",
			LastUpdated: "2024-06-01T08:00:00Z",
			ExtractedContent: ExtractedContent{
				Content: "Invoice INV-1",
				StructuredData: Invoice{
					InvoiceNumber: strPtr("INV-1"),
					TotalAmount:   decimal.NewNullDecimal(decimal.RequireFromString("1110000.50")),
				},
			},
		}},
		Discrepancies: []Discrepancy{{Category: "Tax", Field: "urn", Severity: SeverityHigh}},
	}

	encoded, err := EncodeStoredEntity(entity)
	if err != nil {
		t.Fatalf("EncodeStoredEntity() error = %v", err)
	}
	decoded, err := DecodeStoredEntity(EntityTaxFiling, encoded)
	if err != nil {
		t.Fatalf("DecodeStoredEntity() error = %v", err)
	}

	invoice, ok := decoded.LegalDocuments[0].ExtractedContent.StructuredData.(Invoice)
	if !ok {
		t.Fatalf("expected Invoice variant, got %T", decoded.LegalDocuments[0].ExtractedContent.StructuredData)
	}
	if !invoice.TotalAmount.Valid || !invoice.TotalAmount.Decimal.Equal(decimal.RequireFromString("1110000.5")) {
		t.Fatalf("unexpected total: %+v", invoice.TotalAmount)
	}
	if invoice.VATAmount.Valid {
		t.Fatalf("absent vat amount must stay null")
	}

	decoded.LegalDocuments = nil
	decoded.stored = nil
	entity.LegalDocuments = nil
	if !reflect.DeepEqual(decoded, entity) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", entity, decoded)
	}
}

func TestDecodeStoredEntityKeepsUnmodelledDocumentTypes(t *testing.T) {
	raw := []byte(`{"employeeId":"E-1","name":"Budi","legalDocuments":[{"type":"Passport","name":"passport.pdf","extractedContent":{"content":"","structuredData":{"skills":["go"]}}}]}`)
	entity, err := DecodeStoredEntity(EntityEmployee, raw)
	if err != nil {
		t.Fatalf("DecodeStoredEntity() error = %v", err)
	}
	opaque, ok := entity.LegalDocuments[0].ExtractedContent.StructuredData.(OpaqueData)
	if !ok {
		t.Fatalf("expected OpaqueData, got %T", entity.LegalDocuments[0].ExtractedContent.StructuredData)
	}
	if string(opaque.Raw) != `{"skills":["go"]}` {
		t.Fatalf("unexpected raw structured data: %s", opaque.Raw)
	}

	encoded, err := EncodeStoredEntity(entity)
	if err != nil {
		t.Fatalf("EncodeStoredEntity() error = %v", err)
	}
	if !strings.Contains(string(encoded), `"structuredData":{"skills":["go"]}`) {
		t.Fatalf("opaque structured data not preserved: %s", encoded)
	}
}

const seedCandidate = `{
	"id": "6f1c",
	"candidateId": "6f1c",
	"name": "Siti Nurhaliza",
	"nik": "1234567890123456",
	"address": {"detail": "Jl. Sample Street No. 123", "city": "Jakarta", "rt": "001"},
	"skills": ["Leadership"],
	"legalDocuments": [{
		"type": "KTP",
		"name": "ktp_siti.jpg",
		"url": "https://candidatesdocs.blob.core.windows.net/ktp/6f1c/ktp_siti.jpg",
		"lastUpdated": "2024-05-01T10:00:00Z",
		"verifiedBy": "hr-admin",
		"extractedContent": {
			"text": "KTP (Indonesian ID Card)",
			"tables": [{"header": ["Field", "Value"], "rows": [["NIK", "1234567890123456"]]}],
			"boundingBoxes": [{"page": 1, "x": 0.05, "y": 0.05, "width": 0.9, "height": 0.9, "label": "id_card"}],
			"structuredData": {"nik": "1234567890123456", "name": "Siti Nurhaliza", "blood_type": "O"}
		}
	}, {
		"type": "KARTU_KELUARGA",
		"name": "kk_siti.jpg",
		"extractedContent": {"text": "KARTU KELUARGA", "tables": []}
	}]
}`

func TestEncodeStoredEntityKeepsNestedStoredKeys(t *testing.T) {
	entity, err := DecodeStoredEntity(EntityCandidate, []byte(seedCandidate))
	if err != nil {
		t.Fatalf("DecodeStoredEntity() error = %v", err)
	}
	if got := string(entity.LegalDocuments[0].Extra["verifiedBy"]); got != `"hr-admin"` {
		t.Fatalf("expected verifiedBy in document extra, got %q", got)
	}

	entity.Notes = strPtr("interviewed")
	entity.LegalDocuments = entity.LegalDocuments.Merge([]Document{{
		Type: DocumentNPWP,
		Name: "npwp.pdf",
		ExtractedContent: ExtractedContent{
			StructuredData: NPWP{NPWPNumber: strPtr("01.234.567.8-901.000")},
		},
	}})

	encoded, err := EncodeStoredEntity(entity)
	if err != nil {
		t.Fatalf("EncodeStoredEntity() error = %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(encoded, &record); err != nil {
		t.Fatalf("decode encoded: %v", err)
	}

	for _, key := range []string{"createdAt", "updatedAt", "email", "discrepancies", "dateOfBirth"} {
		if _, ok := record[key]; ok {
			t.Fatalf("key %q was absent from the stored record but got written: %s", key, encoded)
		}
	}
	if record["notes"] != "interviewed" {
		t.Fatalf("expected patched notes, got %v", record["notes"])
	}
	address := record["address"].(map[string]any)
	if address["rt"] != "001" || address["city"] != "Jakarta" {
		t.Fatalf("address keys lost: %v", address)
	}
	if _, ok := address["zip"]; ok {
		t.Fatalf("absent address key written: %v", address)
	}

	docs := record["legalDocuments"].([]any)
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d: %s", len(docs), encoded)
	}
	ktp := docs[0].(map[string]any)
	if ktp["verifiedBy"] != "hr-admin" {
		t.Fatalf("verifiedBy lost: %v", ktp)
	}
	content := ktp["extractedContent"].(map[string]any)
	if content["text"] != "KTP (Indonesian ID Card)" {
		t.Fatalf("extracted text lost: %v", content)
	}
	if tables, ok := content["tables"].([]any); !ok || len(tables) != 1 {
		t.Fatalf("tables lost: %v", content["tables"])
	}
	box := content["boundingBoxes"].([]any)[0].(map[string]any)
	for _, key := range []string{"x", "y", "width", "height", "label", "page"} {
		if _, ok := box[key]; !ok {
			t.Fatalf("bounding box key %q lost: %v", key, box)
		}
	}
	if _, ok := box["geometry"]; ok {
		t.Fatalf("absent geometry written: %v", box)
	}
	structured := content["structuredData"].(map[string]any)
	if structured["blood_type"] != "O" || structured["nik"] != "1234567890123456" {
		t.Fatalf("structured data keys lost: %v", structured)
	}
	if _, ok := structured["religion"]; ok {
		t.Fatalf("absent structured key written: %v", structured)
	}

	kk := docs[1].(map[string]any)
	if kk["type"] != "KARTU_KELUARGA" {
		t.Fatalf("unexpected second document: %v", kk)
	}
	if _, ok := kk["url"]; ok {
		t.Fatalf("absent url written: %v", kk)
	}

	npwp := docs[2].(map[string]any)
	npwpData := npwp["extractedContent"].(map[string]any)["structuredData"].(map[string]any)
	if npwpData["npwp_number"] != "01.234.567.8-901.000" {
		t.Fatalf("new document not written: %v", npwp)
	}
	if _, ok := npwpData["tax_office"]; !ok {
		t.Fatalf("new document must carry its full shape: %v", npwpData)
	}
}

func TestEncodeStoredEntityDropsRemovedExtraKeys(t *testing.T) {
	entity, err := DecodeStoredEntity(EntityCandidate, []byte(seedCandidate))
	if err != nil {
		t.Fatalf("DecodeStoredEntity() error = %v", err)
	}
	entity.Extra = map[string]json.RawMessage{"photoUrl": json.RawMessage(`"p.png"`)}
	entity.LegalDocuments[0].Extra = nil

	encoded, err := EncodeStoredEntity(entity)
	if err != nil {
		t.Fatalf("EncodeStoredEntity() error = %v", err)
	}
	if !strings.Contains(string(encoded), `"photoUrl":"p.png"`) {
		t.Fatalf("new extra key not written: %s", encoded)
	}
	if strings.Contains(string(encoded), "verifiedBy") {
		t.Fatalf("removed document extra key came back: %s", encoded)
	}
	if !strings.Contains(string(encoded), `"candidateId":"6f1c"`) {
		t.Fatalf("external id lost: %s", encoded)
	}
}
