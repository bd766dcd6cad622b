package domain

// LegalDocuments is an ordered collection holding at most one current
// document per type.
type LegalDocuments []Document

func (c LegalDocuments) Clone() LegalDocuments {
	if c == nil {
		return nil
	}
	out := make(LegalDocuments, len(c))
	copy(out, c)
	for i := range out {
		out[i].ExtractedContent.BoundingBoxes = append([]BoundingBox(nil), c[i].ExtractedContent.BoundingBoxes...)
		out[i].Extra = cloneRaw(c[i].Extra)
	}
	return out
}

// ByType returns the current document of type t.
func (c LegalDocuments) ByType(t DocumentType) (Document, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Type == t {
			return c[i], true
		}
	}
	return Document{}, false
}

func (c LegalDocuments) Types() []DocumentType {
	out := make([]DocumentType, 0, len(c))
	seen := make(map[DocumentType]struct{}, len(c))
	for _, doc := range c {
		if _, ok := seen[doc.Type]; ok {
			continue
		}
		seen[doc.Type] = struct{}{}
		out = append(out, doc.Type)
	}
	return out
}

// ReplaceByKey drops every document of type key and appends the last of
// items whose type is key. Other types keep their position.
func (c LegalDocuments) ReplaceByKey(key DocumentType, items []Document) LegalDocuments {
	out := make(LegalDocuments, 0, len(c)+1)
	for _, doc := range c {
		if doc.Type != key {
			out = append(out, doc)
		}
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Type == key {
			out = append(out, items[i])
			break
		}
	}
	return out
}

// Merge applies ReplaceByKey for every type present in patch, in the order
// the types first appear there.
func (c LegalDocuments) Merge(patch []Document) LegalDocuments {
	out := c.Clone()
	seen := make(map[DocumentType]struct{}, len(patch))
	for _, doc := range patch {
		if _, ok := seen[doc.Type]; ok {
			continue
		}
		seen[doc.Type] = struct{}{}
		out = out.ReplaceByKey(doc.Type, patch)
	}
	return out
}
