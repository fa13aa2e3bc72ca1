package directory

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive        Status = "active"
	StatusInactive      Status = "inactive"
	StatusLeave         Status = "leave"
	StatusParentalLeave Status = "parental-leave"
)

var Statuses = []Status{StatusActive, StatusInactive, StatusLeave, StatusParentalLeave}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleManager  = "manager"
)

var Roles = []string{RoleAdmin, RoleEmployee, RoleManager}

const (
	ProtectedUsername = "admin"
	DefaultCountry    = "Deutschland"
)

type Address struct {
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// User is the single persisted entity of the directory. PasswordHash never
// leaves the process in JSON.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Email        string     `json:"email"`
	EmployeeID   string     `json:"employeeId,omitempty"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Roles        []string   `json:"roles"`
	Status       Status     `json:"status"`
	IsProtected  bool       `json:"isProtected"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	Address      Address    `json:"address"`
	HireDate     *time.Time `json:"hireDate,omitempty"`
	ExitDate     *time.Time `json:"exitDate,omitempty"`
	Position     string     `json:"position"`
	Department   string     `json:"department"`
	Salary       *float64   `json:"salary,omitempty"`
	IBAN         string     `json:"iban,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// FullName is derived on read from first and last name; it is never stored.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Profile is the outward view of a user: the record plus its read-time full name.
type Profile struct {
	User
	FullName string `json:"fullName"`
}

func (u User) Profile() Profile {
	return Profile{User: u, FullName: u.FullName()}
}

func Profiles(users []User) []Profile {
	out := make([]Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}

// NewUser is a creation candidate. Password is the plaintext credential and is
// hashed before anything is persisted.
type NewUser struct {
	Username   string
	Password   string
	Email      string
	EmployeeID string
	FirstName  string
	LastName   string
	Roles      []string
	Status     Status
	BirthDate  *time.Time
	Address    Address
	HireDate   *time.Time
	ExitDate   *time.Time
	Position   string
	Department string
	Salary     *float64
	IBAN       string
}

// Patch is a partial update. Nil fields are left untouched. There is no
// password, username or protection field: those never change through Update.
type Patch struct {
	Email      *string
	EmployeeID *string
	FirstName  *string
	LastName   *string
	Roles      []string
	Status     *Status
	BirthDate  *time.Time
	Street     *string
	PostalCode *string
	City       *string
	Country    *string
	HireDate   *time.Time
	ExitDate   *time.Time
	Position   *string
	Department *string
	Salary     *float64
	IBAN       *string
}

func (p Patch) IsEmpty() bool {
	return p.Email == nil && p.EmployeeID == nil && p.FirstName == nil && p.LastName == nil &&
		p.Roles == nil && p.Status == nil && p.BirthDate == nil && p.Street == nil &&
		p.PostalCode == nil && p.City == nil && p.Country == nil && p.HireDate == nil &&
		p.ExitDate == nil && p.Position == nil && p.Department == nil && p.Salary == nil && p.IBAN == nil
}

// Apply merges the patch into u in place.
func (p Patch) Apply(u *User) {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.EmployeeID != nil {
		u.EmployeeID = *p.EmployeeID
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Roles != nil {
		u.Roles = append([]string(nil), p.Roles...)
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.BirthDate != nil {
		u.BirthDate = p.BirthDate
	}
	if p.Street != nil {
		u.Address.Street = *p.Street
	}
	if p.PostalCode != nil {
		u.Address.PostalCode = *p.PostalCode
	}
	if p.City != nil {
		u.Address.City = *p.City
	}
	if p.Country != nil {
		u.Address.Country = *p.Country
	}
	if p.HireDate != nil {
		u.HireDate = p.HireDate
	}
	if p.ExitDate != nil {
		u.ExitDate = p.ExitDate
	}
	if p.Position != nil {
		u.Position = *p.Position
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.Salary != nil {
		u.Salary = p.Salary
	}
	if p.IBAN != nil {
		u.IBAN = *p.IBAN
	}
}

// Assignment records one employee id handed out by a backfill run.
type Assignment struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	EmployeeID string `json:"employeeId"`
}
