package httpadapter

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

const exportSheet = "Documents"

var exportColumns = []string{
	"ID", "Filename", "Status", "Origin", "Mode", "Confidence",
	"Category", "Doc ID", "Subject", "Doc date", "User", "Created", "Updated",
}

func (rt *Router) exportDocuments(w http.ResponseWriter, r *http.Request) {
	docs, ok := rt.listFiltered(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=documents-%s.xlsx", time.Now().UTC().Format("20060102")))
	if err := writeWorkbook(w, docs); err != nil {
		slog.Error("export_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

// writeWorkbook renders one row per document plus a header row. Free-form
// metadata keys get their own trailing columns.
func writeWorkbook(w io.Writer, docs []domain.Document) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	extra := extraMetadataKeys(docs)
	header := make([]any, 0, len(exportColumns)+len(extra))
	for _, col := range exportColumns {
		header = append(header, col)
	}
	for _, key := range extra {
		header = append(header, key)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, doc := range docs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(doc)
		for _, key := range extra {
			row = append(row, doc.Metadata[key])
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	return f.Write(w)
}

func exportRow(doc domain.Document) []any {
	var confidence any = ""
	if doc.Confidence != nil {
		confidence = *doc.Confidence
	}
	return []any{
		doc.ID,
		doc.Filename,
		string(doc.Status),
		string(doc.Origin),
		string(doc.Mode),
		confidence,
		doc.Metadata[domain.MetaCategory],
		doc.Metadata[domain.MetaDocID],
		doc.Metadata[domain.MetaSubject],
		doc.Metadata[domain.MetaDocDate],
		doc.User,
		doc.CreatedAt.UTC().Format(time.RFC3339),
		doc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// extraMetadataKeys lists free-form keys beyond the well-known ones, sorted.
func extraMetadataKeys(docs []domain.Document) []string {
	known := map[string]struct{}{
		domain.MetaCategory: {}, domain.MetaDocID: {}, domain.MetaSubject: {}, domain.MetaDocDate: {},
	}
	seen := map[string]struct{}{}
	for _, doc := range docs {
		for key := range doc.Metadata {
			if _, ok := known[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
