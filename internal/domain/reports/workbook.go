package reports

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"personnel/internal/domain/directory"
)

const (
	SheetEmployees = "Mitarbeiter"
	SheetSummary   = "Übersicht"
)

var employeeHeader = []any{
	"Personalnummer", "Benutzername", "Vorname", "Nachname", "E-Mail", "Rollen", "Status",
	"Position", "Abteilung", "Eintrittsdatum", "Austrittsdatum", "Straße", "PLZ", "Ort", "Land",
	"Gehalt", "IBAN", "Letzter Login",
}

// DirectoryWorkbook writes all users to an XLSX workbook with one row per user
// and a summary sheet counting users by status and department.
func DirectoryWorkbook(w io.Writer, users []directory.User) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetEmployees); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetEmployees, "A1", &employeeHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetEmployees, 1, 1, bold); err != nil {
		return err
	}

	for i, u := range users {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			u.EmployeeID, u.Username, u.FirstName, u.LastName, u.Email,
			strings.Join(u.Roles, ", "), string(u.Status), u.Position, u.Department,
			optionalDate(u.HireDate), optionalDate(u.ExitDate),
			u.Address.Street, u.Address.PostalCode, u.Address.City, u.Address.Country,
			optionalSalary(u.Salary), u.IBAN, lastLogin(u),
		}
		if err := f.SetSheetRow(SheetEmployees, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetEmployees, "A", "R", 18); err != nil {
		return err
	}

	if err := writeSummary(f, users, bold); err != nil {
		return err
	}
	return f.Write(w)
}

func writeSummary(f *excelize.File, users []directory.User, bold int) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}
	byStatus := map[string]int{}
	byDepartment := map[string]int{}
	for _, u := range users {
		byStatus[string(u.Status)]++
		dept := u.Department
		if dept == "" {
			dept = "-"
		}
		byDepartment[dept]++
	}

	row := 1
	put := func(values ...any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(SheetSummary, cell, &values)
	}

	if err := put("Mitarbeiter gesamt", len(users)); err != nil {
		return err
	}
	row++
	if err := f.SetRowStyle(SheetSummary, row, row, bold); err != nil {
		return err
	}
	if err := put("Status", "Anzahl"); err != nil {
		return err
	}
	for _, status := range directory.Statuses {
		if err := put(string(status), byStatus[string(status)]); err != nil {
			return err
		}
	}
	row++
	if err := f.SetRowStyle(SheetSummary, row, row, bold); err != nil {
		return err
	}
	if err := put("Abteilung", "Anzahl"); err != nil {
		return err
	}
	departments := make([]string, 0, len(byDepartment))
	for dept := range byDepartment {
		departments = append(departments, dept)
	}
	sort.Strings(departments)
	for _, dept := range departments {
		if err := put(dept, byDepartment[dept]); err != nil {
			return err
		}
	}
	return nil
}

func optionalDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func optionalSalary(value *float64) any {
	if value == nil {
		return ""
	}
	return *value
}

func lastLogin(u directory.User) string {
	if u.LastLogin == nil {
		return ""
	}
	return u.LastLogin.Format(dateLayout + " 15:04")
}
