package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Stored entities use camelCase keys. The structs below are the one place
// that maps them to the snake_case model; every model field has exactly one
// stored key. Unknown keys of the entity and of each document land in their
// Extra maps, and anything nested deeper rides on the stored form kept
// alongside the typed value.

type storedExtractedContent struct {
	Content        string          `json:"content"`
	StructuredData json.RawMessage `json:"structuredData"`
	BoundingBoxes  []BoundingBox   `json:"boundingBoxes"`
}

type storedDocument struct {
	Type             DocumentType           `json:"type"`
	Name             string                 `json:"name"`
	URL              string                 `json:"url"`
	LastUpdated      string                 `json:"lastUpdated"`
	ExtractedContent storedExtractedContent `json:"extractedContent"`
}

var storedDocumentKeys = map[string]struct{}{
	"type": {}, "name": {}, "url": {}, "lastUpdated": {}, "extractedContent": {},
}

type storedEntity struct {
	ID          string            `json:"id"`
	Kind        EntityKind        `json:"kind"`
	Version     int64             `json:"version"`
	Name        string            `json:"name"`
	Email       *string           `json:"email"`
	Phone       *string           `json:"phone"`
	Gender      *string           `json:"gender"`
	DateOfBirth *string           `json:"dateOfBirth"`
	BirthPlace  *string           `json:"birthPlace"`
	NIK         *string           `json:"nik"`
	Address     *Address          `json:"address"`
	Position    *string           `json:"position"`
	Department  *string           `json:"department"`
	Status      *string           `json:"status"`
	AppliedDate *string           `json:"appliedDate"`
	JoinedDate  *string           `json:"joinedDate"`
	Skills      []string          `json:"skills"`
	Notes       *string           `json:"notes"`
	NPWP        *string           `json:"npwp"`
	URN         *string           `json:"urn"`
	TaxPeriod   *string           `json:"taxPeriod"`
	Documents   []json.RawMessage `json:"legalDocuments"`
	Discrepancy []Discrepancy     `json:"discrepancies"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

var storedEntityKeys = map[string]struct{}{
	"id": {}, "kind": {}, "version": {}, "name": {}, "email": {}, "phone": {},
	"gender": {}, "dateOfBirth": {}, "birthPlace": {}, "nik": {}, "address": {},
	"position": {}, "department": {}, "status": {}, "appliedDate": {},
	"joinedDate": {}, "skills": {}, "notes": {}, "npwp": {}, "urn": {},
	"taxPeriod": {}, "legalDocuments": {}, "discrepancies": {},
	"createdAt": {}, "updatedAt": {},
}

func isStoredKey(kind EntityKind, key string) bool {
	if key == kind.ExternalIDKey() {
		return true
	}
	_, ok := storedEntityKeys[key]
	return ok
}

// EncodeStoredEntity renders e in its stored camelCase form, including
// Extra keys. A decoded entity is written over the record it came from:
// keys the model does not know are kept at any depth, and known keys the
// record never had stay absent while they are empty.
func EncodeStoredEntity(e *Entity) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("encode stored entity: nil entity")
	}
	stored := storedEntity{
		ID:          e.ID,
		Kind:        e.Kind,
		Version:     e.Version,
		Name:        e.Name,
		Email:       e.Email,
		Phone:       e.Phone,
		Gender:      e.Gender,
		DateOfBirth: e.DateOfBirth,
		BirthPlace:  e.BirthPlace,
		NIK:         e.NIK,
		Address:     e.Address,
		Position:    e.Position,
		Department:  e.Department,
		Status:      e.Status,
		AppliedDate: e.AppliedDate,
		JoinedDate:  e.JoinedDate,
		Skills:      e.Skills,
		Notes:       e.Notes,
		NPWP:        e.NPWP,
		URN:         e.URN,
		TaxPeriod:   e.TaxPeriod,
		Discrepancy: e.Discrepancies,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	stored.Documents = make([]json.RawMessage, 0, len(e.LegalDocuments))
	for _, doc := range e.LegalDocuments {
		raw, err := encodeStoredDocument(doc)
		if err != nil {
			return nil, err
		}
		stored.Documents = append(stored.Documents, raw)
	}

	fields, err := splitObject(stored)
	if err != nil {
		return nil, fmt.Errorf("split stored entity: %w", err)
	}
	externalID, err := json.Marshal(e.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("marshal external id: %w", err)
	}
	fields[e.Kind.ExternalIDKey()] = externalID

	// Documents carry their own stored form and discrepancies are recomputed,
	// so neither is laid over the previous list.
	replace := map[string]bool{"legalDocuments": true, "discrepancies": true}
	for key, value := range e.Extra {
		if isStoredKey(e.Kind, key) {
			continue
		}
		fields[key] = value
		replace[key] = true
	}
	if err := overlayStored(e.stored, fields, replace); err != nil {
		return nil, fmt.Errorf("overlay stored entity: %w", err)
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal stored entity fields: %w", err)
	}
	return out, nil
}

// DecodeStoredEntity is the inverse of EncodeStoredEntity. The kind decides
// which key holds the external id, so it comes from the caller rather than
// the document.
func DecodeStoredEntity(kind EntityKind, raw []byte) (*Entity, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode stored entity: %w", err)
	}
	var stored storedEntity
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode stored entity fields: %w", err)
	}

	e := &Entity{
		ID:            stored.ID,
		Kind:          kind,
		Version:       stored.Version,
		Name:          stored.Name,
		Email:         stored.Email,
		Phone:         stored.Phone,
		Gender:        stored.Gender,
		DateOfBirth:   stored.DateOfBirth,
		BirthPlace:    stored.BirthPlace,
		NIK:           stored.NIK,
		Address:       stored.Address,
		Position:      stored.Position,
		Department:    stored.Department,
		Status:        stored.Status,
		AppliedDate:   stored.AppliedDate,
		JoinedDate:    stored.JoinedDate,
		Skills:        stored.Skills,
		Notes:         stored.Notes,
		NPWP:          stored.NPWP,
		URN:           stored.URN,
		TaxPeriod:     stored.TaxPeriod,
		Discrepancies: stored.Discrepancy,
		CreatedAt:     stored.CreatedAt,
		UpdatedAt:     stored.UpdatedAt,
		stored:        append(json.RawMessage(nil), raw...),
	}
	if rawID, ok := fields[kind.ExternalIDKey()]; ok {
		if err := json.Unmarshal(rawID, &e.ExternalID); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind.ExternalIDKey(), err)
		}
	}

	e.LegalDocuments = make(LegalDocuments, 0, len(stored.Documents))
	for _, rawDoc := range stored.Documents {
		doc, err := decodeStoredDocument(rawDoc)
		if err != nil {
			return nil, err
		}
		e.LegalDocuments = append(e.LegalDocuments, doc)
	}

	for key, value := range fields {
		if isStoredKey(kind, key) {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]json.RawMessage)
		}
		e.Extra[key] = value
	}
	return e, nil
}

func encodeStoredDocument(doc Document) (json.RawMessage, error) {
	structured := doc.ExtractedContent.StructuredData
	if structured == nil {
		structured = EmptyData{}
	}
	data, err := json.Marshal(structured)
	if err != nil {
		return nil, fmt.Errorf("marshal %s structured data: %w", doc.Type, err)
	}
	fields, err := splitObject(storedDocument{
		Type:        doc.Type,
		Name:        doc.Name,
		URL:         doc.URL,
		LastUpdated: doc.LastUpdated,
		ExtractedContent: storedExtractedContent{
			Content:        doc.ExtractedContent.Content,
			StructuredData: data,
			BoundingBoxes:  doc.ExtractedContent.BoundingBoxes,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("split %s document: %w", doc.Type, err)
	}

	replace := make(map[string]bool, len(doc.Extra))
	for key, value := range doc.Extra {
		if _, known := storedDocumentKeys[key]; known {
			continue
		}
		fields[key] = value
		replace[key] = true
	}
	if err := overlayStored(doc.stored, fields, replace); err != nil {
		return nil, fmt.Errorf("overlay %s document: %w", doc.Type, err)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal %s document: %w", doc.Type, err)
	}
	return out, nil
}

func decodeStoredDocument(raw json.RawMessage) (Document, error) {
	var sd storedDocument
	if err := json.Unmarshal(raw, &sd); err != nil {
		return Document{}, fmt.Errorf("decode stored document: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("decode stored document: %w", err)
	}
	structured, err := DecodeStructuredData(sd.Type, sd.ExtractedContent.StructuredData)
	if err != nil {
		return Document{}, fmt.Errorf("stored document %s: %w", sd.Type, err)
	}
	doc := Document{
		Type:        sd.Type,
		Name:        sd.Name,
		URL:         sd.URL,
		LastUpdated: sd.LastUpdated,
		ExtractedContent: ExtractedContent{
			Content:        sd.ExtractedContent.Content,
			StructuredData: structured,
			BoundingBoxes:  sd.ExtractedContent.BoundingBoxes,
		},
		stored: append(json.RawMessage(nil), raw...),
	}
	for key, value := range fields {
		if _, known := storedDocumentKeys[key]; known {
			continue
		}
		if doc.Extra == nil {
			doc.Extra = make(map[string]json.RawMessage)
		}
		doc.Extra[key] = value
	}
	return doc, nil
}

func splitObject(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// overlayStored lays fields over the stored object prev, in place. Keys in
// replace are written as they are; other keys present in prev are merged
// into their previous value. Keys prev never had are dropped while empty.
// With no prev every field is kept.
func overlayStored(prev json.RawMessage, fields map[string]json.RawMessage, replace map[string]bool) error {
	var base map[string]json.RawMessage
	if len(bytes.TrimSpace(prev)) > 0 {
		if err := json.Unmarshal(prev, &base); err != nil {
			return err
		}
	}
	if base == nil {
		return nil
	}
	for key, value := range fields {
		old, had := base[key]
		switch {
		case !had && isEmptyJSON(value):
			delete(fields, key)
		case had && !replace[key]:
			merged, err := overlayJSON(old, value)
			if err != nil {
				return err
			}
			fields[key] = merged
		}
	}
	return nil
}

// overlayJSON merges typed over base. Objects merge key by key, keeping keys
// only base has; lists of equal length merge item by item; anything else is
// replaced by typed.
func overlayJSON(base, typed json.RawMessage) (json.RawMessage, error) {
	var baseObj, typedObj map[string]json.RawMessage
	if json.Unmarshal(base, &baseObj) == nil && json.Unmarshal(typed, &typedObj) == nil &&
		baseObj != nil && typedObj != nil {
		for key, value := range typedObj {
			old, had := baseObj[key]
			if !had {
				if !isEmptyJSON(value) {
					baseObj[key] = value
				}
				continue
			}
			merged, err := overlayJSON(old, value)
			if err != nil {
				return nil, err
			}
			baseObj[key] = merged
		}
		return json.Marshal(baseObj)
	}

	var baseList, typedList []json.RawMessage
	if json.Unmarshal(base, &baseList) == nil && json.Unmarshal(typed, &typedList) == nil &&
		baseList != nil && typedList != nil && len(baseList) == len(typedList) {
		for i := range typedList {
			merged, err := overlayJSON(baseList[i], typedList[i])
			if err != nil {
				return nil, err
			}
			typedList[i] = merged
		}
		return json.Marshal(typedList)
	}
	return typed, nil
}

var emptyJSONValues = [][]byte{
	[]byte("null"), []byte(`""`), []byte("0"), []byte("[]"), []byte("{}"),
	[]byte(`"0001-01-01T00:00:00Z"`),
}

func isEmptyJSON(value json.RawMessage) bool {
	trimmed := bytes.TrimSpace(value)
	for _, empty := range emptyJSONValues {
		if bytes.Equal(trimmed, empty) {
			return true
		}
	}
	return false
}
