package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	footerNotice = "GDPR Compliant Health Records Export"
	pageAlias    = "{nb}"

	marginMM    = 14.0
	rowHeightMM = 7.0
	// sectionBreakY starts a new page rather than orphaning a section heading.
	sectionBreakY = 250.0
)

type section struct {
	domain Domain
	rows   []Row
}

type document struct {
	pdf         *fpdf.Fpdf
	tr          func(string) string
	previewRows int
}

// renderDocument lays out the title block, then one table per non-empty
// domain capped at previewRows, with a page footer on every page. Titles in
// unavailable are named in an incomplete-export notice under the title.
func renderDocument(userID string, exportedAt time.Time, sections []section, unavailable []string, previewRows int, compress bool) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetTitle("Complete Health Records", false)
	pdf.SetCreator("vitalis", false)
	pdf.SetCreationDate(exportedAt)
	pdf.SetModificationDate(exportedAt)
	pdf.SetMargins(marginMM, 20, marginMM)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages(pageAlias)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of %s - %s", pdf.PageNo(), pageAlias, footerNotice), "", 0, "C", false, 0, "")
	})

	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), previewRows: previewRows}
	pdf.AddPage()
	d.title(userID, exportedAt, unavailable)
	for _, s := range sections {
		if s.domain.Single {
			d.keyValueTable(s.domain, s.rows[0])
			continue
		}
		d.table(s.domain, s.rows)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *document) title(userID string, exportedAt time.Time, unavailable []string) {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, "Complete Health Records", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Export Date: "+exportedAt.UTC().Format("2006-01-02 15:04:05 UTC"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "User ID: "+userID, "", 1, "C", false, 0, "")
	if len(unavailable) > 0 {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(185, 28, 28)
		pdf.MultiCell(0, 6, d.tr(incompleteNotice(unavailable)), "", "C", false)
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(6)
}

// incompleteNotice is the banner printed on a partial document export.
func incompleteNotice(unavailable []string) string {
	return "Incomplete export: " + strings.Join(unavailable, ", ") + " unavailable"
}

func (d *document) heading(text string) {
	pdf := d.pdf
	if pdf.GetY() > sectionBreakY {
		pdf.AddPage()
	}
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, d.tr(text), "", 1, "L", false, 0, "")
}

func (d *document) keyValueTable(domain Domain, row Row) {
	d.heading(domain.Title)
	widths := d.columnWidths(2)
	d.headerRow([]string{"Field", "Value"}, widths)
	d.pdf.SetFont("Helvetica", "", 9)
	for _, f := range domain.Fields {
		d.bodyRow([]string{f.Header, f.Format(row[f.Column])}, widths, false)
	}
	d.pdf.Ln(6)
}

func (d *document) table(domain Domain, rows []Row) {
	d.heading(fmt.Sprintf("%s (%d records)", domain.Title, len(rows)))
	preview := rows
	if d.previewRows > 0 && len(preview) > d.previewRows {
		preview = preview[:d.previewRows]
	}

	headers := make([]string, len(domain.Fields))
	for i, f := range domain.Fields {
		headers[i] = f.Header
	}
	widths := d.columnWidths(len(domain.Fields))
	d.headerRow(headers, widths)

	d.pdf.SetFont("Helvetica", "", 9)
	for i, row := range preview {
		if d.pageWouldBreak() {
			d.pdf.AddPage()
			d.headerRow(headers, widths)
			d.pdf.SetFont("Helvetica", "", 9)
		}
		cells := make([]string, len(domain.Fields))
		for j, f := range domain.Fields {
			cells[j] = f.Format(row[f.Column])
		}
		d.bodyRow(cells, widths, i%2 == 1)
	}
	if len(preview) < len(rows) {
		d.pdf.SetFont("Helvetica", "I", 8)
		d.pdf.CellFormat(0, 6, fmt.Sprintf("Showing first %d of %d records. The structured export contains all records.", len(preview), len(rows)), "", 1, "L", false, 0, "")
	}
	d.pdf.Ln(6)
}

func (d *document) headerRow(headers []string, widths []float64) {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(59, 130, 246)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeightMM, d.fit(h, widths[i]), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

func (d *document) bodyRow(cells []string, widths []float64, shaded bool) {
	pdf := d.pdf
	pdf.SetFillColor(241, 245, 249)
	for i, c := range cells {
		pdf.CellFormat(widths[i], rowHeightMM, d.fit(c, widths[i]), "1", 0, "L", shaded, 0, "")
	}
	pdf.Ln(-1)
}

func (d *document) columnWidths(n int) []float64 {
	pageWidth, _ := d.pdf.GetPageSize()
	w := (pageWidth - 2*marginMM) / float64(n)
	widths := make([]float64, n)
	for i := range widths {
		widths[i] = w
	}
	return widths
}

func (d *document) pageWouldBreak() bool {
	_, pageHeight := d.pdf.GetPageSize()
	_, _, _, bottom := d.pdf.GetMargins()
	return d.pdf.GetY()+rowHeightMM > pageHeight-bottom
}

// fit truncates text with an ellipsis so it stays inside its cell.
func (d *document) fit(text string, width float64) string {
	text = d.tr(text)
	limit := width - 2
	if d.pdf.GetStringWidth(text) <= limit {
		return text
	}
	// The translated text is single-byte cp1252, so byte slicing is safe.
	for len(text) > 0 && d.pdf.GetStringWidth(text+"...") > limit {
		text = text[:len(text)-1]
	}
	return text + "..."
}
