package reports

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"personnel/internal/domain/directory"
)

const dateLayout = "02.01.2006"

// EmployeeSheet renders a one-page personnel sheet for u as PDF.
func EmployeeSheet(w io.Writer, u directory.User, generatedAt time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Personalblatt "+u.FullName()), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr("Personalblatt"))
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, tr(u.FullName()))
	pdf.Ln(10)

	section := func(title string, rows [][2]string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, tr(title))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, row := range rows {
			pdf.CellFormat(55, 7, tr(row[0]), "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	section("Stammdaten", [][2]string{
		{"Benutzername", u.Username},
		{"Personalnummer", dash(u.EmployeeID)},
		{"E-Mail", u.Email},
		{"Geburtsdatum", formatDate(u.BirthDate)},
		{"Rollen", strings.Join(u.Roles, ", ")},
		{"Status", string(u.Status)},
	})
	section("Adresse", [][2]string{
		{"Straße", dash(u.Address.Street)},
		{"PLZ / Ort", dash(strings.TrimSpace(u.Address.PostalCode + " " + u.Address.City))},
		{"Land", dash(u.Address.Country)},
	})
	section("Beschäftigung", [][2]string{
		{"Position", dash(u.Position)},
		{"Abteilung", dash(u.Department)},
		{"Eintrittsdatum", formatDate(u.HireDate)},
		{"Austrittsdatum", formatDate(u.ExitDate)},
	})
	section("Finanzen", [][2]string{
		{"Gehalt", formatSalary(u.Salary)},
		{"IBAN", dash(u.IBAN)},
	})

	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 6, tr("Erstellt am "+generatedAt.Format(dateLayout+" 15:04")))

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func formatSalary(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f EUR", *value)
}
