package userhandler

import (
	"strings"

	"personnel/internal/domain/directory"
	"personnel/internal/transport/http/shared"
)

type addressPayload struct {
	Street     *string `json:"street"`
	PostalCode *string `json:"postalCode"`
	City       *string `json:"city"`
	Country    *string `json:"country"`
}

// userPayload is the body of create and update. Password is only read on
// create; fullName and isProtected are not accepted at all.
type userPayload struct {
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	Email      *string         `json:"email"`
	EmployeeID *string         `json:"employeeId"`
	FirstName  *string         `json:"firstName"`
	LastName   *string         `json:"lastName"`
	Roles      []string        `json:"roles"`
	Status     *string         `json:"status"`
	BirthDate  *string         `json:"birthDate"`
	Address    *addressPayload `json:"address"`
	HireDate   *string         `json:"hireDate"`
	ExitDate   *string         `json:"exitDate"`
	Position   *string         `json:"position"`
	Department *string         `json:"department"`
	Salary     *float64        `json:"salary"`
	IBAN       *string         `json:"iban"`
}

var statusNames = func() []string {
	names := make([]string, 0, len(directory.Statuses))
	for _, status := range directory.Statuses {
		names = append(names, string(status))
	}
	return names
}()

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// checkEnums reports every unknown role and status at once, before the
// directory sees the record.
func (p userPayload) checkEnums(v *shared.Validator) {
	for _, role := range p.Roles {
		if role == "" {
			v.Add("roles", "must not contain empty entries")
			continue
		}
		v.Enum("roles", role, directory.Roles, "unknown role "+role)
	}
	if p.Status != nil {
		if *p.Status == "" {
			v.Add("status", "must not be empty")
		}
		v.Enum("status", *p.Status, statusNames, "must be one of "+strings.Join(statusNames, ", "))
	}
}

func (p userPayload) newUser(v *shared.Validator) directory.NewUser {
	p.checkEnums(v)
	in := directory.NewUser{
		Username:   p.Username,
		Password:   p.Password,
		Email:      deref(p.Email),
		EmployeeID: deref(p.EmployeeID),
		FirstName:  deref(p.FirstName),
		LastName:   deref(p.LastName),
		Roles:      p.Roles,
		Status:     directory.Status(deref(p.Status)),
		BirthDate:  v.OptionalDate("birthDate", p.BirthDate),
		HireDate:   v.OptionalDate("hireDate", p.HireDate),
		ExitDate:   v.OptionalDate("exitDate", p.ExitDate),
		Position:   deref(p.Position),
		Department: deref(p.Department),
		Salary:     p.Salary,
		IBAN:       deref(p.IBAN),
	}
	if p.Address != nil {
		in.Address = directory.Address{
			Street:     deref(p.Address.Street),
			PostalCode: deref(p.Address.PostalCode),
			City:       deref(p.Address.City),
			Country:    deref(p.Address.Country),
		}
	}
	return in
}

// patch keeps only the fields present in the body. A blank employee id is
// treated as absent so an edit form cannot clear it.
func (p userPayload) patch(v *shared.Validator) directory.Patch {
	p.checkEnums(v)
	patch := directory.Patch{
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Roles:      p.Roles,
		BirthDate:  v.OptionalDate("birthDate", p.BirthDate),
		HireDate:   v.OptionalDate("hireDate", p.HireDate),
		ExitDate:   v.OptionalDate("exitDate", p.ExitDate),
		Position:   p.Position,
		Department: p.Department,
		Salary:     p.Salary,
		IBAN:       p.IBAN,
	}
	if p.EmployeeID != nil && strings.TrimSpace(*p.EmployeeID) != "" {
		patch.EmployeeID = p.EmployeeID
	}
	if p.Status != nil {
		status := directory.Status(*p.Status)
		patch.Status = &status
	}
	if p.Address != nil {
		patch.Street = p.Address.Street
		patch.PostalCode = p.Address.PostalCode
		patch.City = p.Address.City
		patch.Country = p.Address.Country
	}
	return patch
}

// auditSnapshot is the user as written to the audit trail: salary is dropped
// and the IBAN reduced to its last four characters.
func auditSnapshot(u directory.User) directory.Profile {
	u.Salary = nil
	u.IBAN = maskIBAN(u.IBAN)
	return u.Profile()
}

func maskIBAN(iban string) string {
	compact := strings.ReplaceAll(iban, " ", "")
	if compact == "" {
		return ""
	}
	if len(compact) <= 4 {
		return strings.Repeat("*", len(compact))
	}
	return strings.Repeat("*", len(compact)-4) + compact[len(compact)-4:]
}
