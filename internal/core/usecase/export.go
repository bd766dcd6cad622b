package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const (
	entitiesSheet      = "Entities"
	documentsSheet     = "Documents"
	discrepanciesSheet = "Discrepancies"
)

// ExportUseCase writes every entity of one kind, its legal documents and its
// discrepancies into an XLSX workbook.
type ExportUseCase struct {
	store ports.EntityStore
}

func NewExportUseCase(store ports.EntityStore) *ExportUseCase {
	return &ExportUseCase{store: store}
}

func (uc *ExportUseCase) Export(ctx context.Context, kind domain.EntityKind, w io.Writer) error {
	start := time.Now()
	entities, err := uc.store.Query(ctx, domain.EntityFilter{Kind: kind})
	if err != nil {
		return fmt.Errorf("query entities: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", entitiesSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	for _, sheet := range []string{documentsSheet, discrepanciesSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("xlsx sheet: %w", err)
		}
	}

	writeRow(f, entitiesSheet, 1, entityHeaders(kind))
	writeRow(f, documentsSheet, 1, []any{"Entity ID", "External ID", "Type", "Name", "URL", "Last Updated"})
	writeRow(f, discrepanciesSheet, 1, []any{"Entity ID", "External ID", "Category", "Field", "Severity", "Note", "Source", "Source Value", "Target", "Target Value"})

	docRow, discRow := 2, 2
	for i, e := range entities {
		writeRow(f, entitiesSheet, i+2, entityRow(kind, e))
		for _, doc := range e.LegalDocuments {
			writeRow(f, documentsSheet, docRow, []any{e.ID, e.ExternalID, string(doc.Type), doc.Name, doc.URL, doc.LastUpdated})
			docRow++
		}
		for _, d := range e.Discrepancies {
			writeRow(f, discrepanciesSheet, discRow, []any{
				e.ID, e.ExternalID, d.Category, d.Field, string(d.Severity), d.Note,
				d.Source.Type + " " + d.Source.Name, d.Source.Value,
				d.Target.Type + " " + d.Target.Name, d.Target.Value,
			})
			discRow++
		}
	}

	_ = f.SetColWidth(entitiesSheet, "A", "C", 24)
	_ = f.SetColWidth(documentsSheet, "A", "F", 24)
	_ = f.SetColWidth(discrepanciesSheet, "F", "F", 60)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	slog.Info("export_finished", "kind", kind, "entities", len(entities), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func entityHeaders(kind domain.EntityKind) []any {
	if kind == domain.EntityTaxFiling {
		return []any{"ID", "Filing ID", "Name", "NPWP", "URN", "Tax Period", "Documents", "Discrepancies", "Updated At"}
	}
	return []any{"ID", "External ID", "Name", "Email", "Phone", "Position", "Status", "Date of Birth", "NIK", "Documents", "Discrepancies", "Updated At"}
}

func entityRow(kind domain.EntityKind, e *domain.Entity) []any {
	docs := make([]string, 0, len(e.LegalDocuments))
	for _, t := range e.LegalDocuments.Types() {
		docs = append(docs, string(t))
	}
	updated := e.UpdatedAt.UTC().Format(time.RFC3339)
	if kind == domain.EntityTaxFiling {
		return []any{e.ID, e.ExternalID, e.Name, deref(e.NPWP), deref(e.URN), deref(e.TaxPeriod), strings.Join(docs, ", "), len(e.Discrepancies), updated}
	}
	return []any{
		e.ID, e.ExternalID, e.Name, deref(e.Email), deref(e.Phone), deref(e.Position), deref(e.Status),
		deref(e.DateOfBirth), deref(e.NIK), strings.Join(docs, ", "), len(e.Discrepancies), updated,
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
