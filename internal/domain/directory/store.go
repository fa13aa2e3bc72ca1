package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"personnel/internal/apperr"
	cryptoutil "personnel/internal/platform/crypto"
	"personnel/internal/platform/db"
)

const (
	constraintUsername   = "users_username_key"
	constraintEmail      = "users_email_key"
	constraintEmployeeID = "users_employee_id_key"
	constraintProtected  = "users_single_protected"
)

const userColumns = `
    id::text, username, password_hash, email, COALESCE(employee_id, ''),
    first_name, last_name, roles, status, is_protected,
    birth_date, street, postal_code, city, country,
    hire_date, exit_date, position, department,
    salary, salary_enc, iban, iban_enc,
    last_login, created_at, updated_at`

type PostgresStore struct {
	DB     db.DBTX
	Crypto *cryptoutil.Cipher
}

func NewPostgresStore(conn db.DBTX, crypto *cryptoutil.Cipher) *PostgresStore {
	return &PostgresStore{DB: conn, Crypto: crypto}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, crypto *cryptoutil.Cipher) (*User, error) {
	var u User
	var status string
	var salaryPlain *float64
	var salaryEnc, ibanEnc []byte
	var ibanPlain string
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.EmployeeID,
		&u.FirstName, &u.LastName, &u.Roles, &status, &u.IsProtected,
		&u.BirthDate, &u.Address.Street, &u.Address.PostalCode, &u.Address.City, &u.Address.Country,
		&u.HireDate, &u.ExitDate, &u.Position, &u.Department,
		&salaryPlain, &salaryEnc, &ibanPlain, &ibanEnc,
		&u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, translateError(err)
	}
	u.Status = Status(status)
	u.Salary = crypto.OpenFloat(salaryEnc, salaryPlain)
	u.IBAN = crypto.OpenString(ibanEnc, ibanPlain)
	return &u, nil
}

// translateError maps unique violations onto the directory conflict errors by
// constraint name. Anything else is returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintUsername:
		return apperr.Wrap(ErrUsernameTaken, err)
	case constraintEmail:
		return apperr.Wrap(ErrEmailTaken, err)
	case constraintEmployeeID:
		return apperr.Wrap(ErrEmployeeIDTaken, err)
	case constraintProtected:
		return apperr.Wrap(ErrProtectedExists, err)
	}
	return err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// sealSalary and sealIBAN return the plaintext and ciphertext column values for the sensitive
// fields. With encryption configured the plaintext columns stay empty.
func (s *PostgresStore) sealSalary(value *float64) (*float64, []byte, error) {
	if !s.Crypto.Configured() || value == nil {
		return value, nil, nil
	}
	enc, err := s.Crypto.SealFloat(value)
	if err != nil {
		return nil, nil, err
	}
	return nil, enc, nil
}

func (s *PostgresStore) sealIBAN(value string) (string, []byte, error) {
	if !s.Crypto.Configured() || value == "" {
		return value, nil, nil
	}
	enc, err := s.Crypto.SealString(value)
	if err != nil {
		return "", nil, err
	}
	return "", enc, nil
}

func (s *PostgresStore) Insert(ctx context.Context, u *User) error {
	salaryPlain, salaryEnc, err := s.sealSalary(u.Salary)
	if err != nil {
		return err
	}
	ibanPlain, ibanEnc, err := s.sealIBAN(u.IBAN)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO users (
      id, username, password_hash, email, employee_id,
      first_name, last_name, roles, status, is_protected,
      birth_date, street, postal_code, city, country,
      hire_date, exit_date, position, department,
      salary, salary_enc, iban, iban_enc,
      created_at, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
  `,
		u.ID, u.Username, u.PasswordHash, u.Email, nullable(u.EmployeeID),
		u.FirstName, u.LastName, u.Roles, string(u.Status), u.IsProtected,
		u.BirthDate, u.Address.Street, u.Address.PostalCode, u.Address.City, u.Address.Country,
		u.HireDate, u.ExitDate, u.Position, u.Department,
		salaryPlain, salaryEnc, ibanPlain, ibanEnc,
		u.CreatedAt, u.UpdatedAt,
	)
	return translateError(err)
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch, at time.Time) (*User, error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.EmployeeID != nil {
		set("employee_id", nullable(*patch.EmployeeID))
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Roles != nil {
		set("roles", patch.Roles)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.BirthDate != nil {
		set("birth_date", *patch.BirthDate)
	}
	if patch.Street != nil {
		set("street", *patch.Street)
	}
	if patch.PostalCode != nil {
		set("postal_code", *patch.PostalCode)
	}
	if patch.City != nil {
		set("city", *patch.City)
	}
	if patch.Country != nil {
		set("country", *patch.Country)
	}
	if patch.HireDate != nil {
		set("hire_date", *patch.HireDate)
	}
	if patch.ExitDate != nil {
		set("exit_date", *patch.ExitDate)
	}
	if patch.Position != nil {
		set("position", *patch.Position)
	}
	if patch.Department != nil {
		set("department", *patch.Department)
	}
	if patch.Salary != nil {
		plain, enc, err := s.sealSalary(patch.Salary)
		if err != nil {
			return nil, err
		}
		set("salary", plain)
		set("salary_enc", enc)
	}
	if patch.IBAN != nil {
		plain, enc, err := s.sealIBAN(*patch.IBAN)
		if err != nil {
			return nil, err
		}
		set("iban", plain)
		set("iban_enc", enc)
	}
	set("updated_at", at)

	args = append(args, id)
	query := fmt.Sprintf(`
    UPDATE users SET %s
    WHERE id = $%d
    RETURNING %s
  `, strings.Join(sets, ", "), len(args), userColumns)
	return scanUser(s.DB.QueryRow(ctx, query, args...), s.Crypto)
}

// Delete never removes the protected account, whatever the caller checked.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `
    DELETE FROM users
    WHERE id = $1 AND NOT is_protected
  `, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+userColumns+`
    FROM users
    WHERE id = $1
  `, id)
	return scanUser(row, s.Crypto)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+userColumns+`
    FROM users
    WHERE username = $1
  `, username)
	return scanUser(row, s.Crypto)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+userColumns+`
    FROM users
    WHERE email = $1
  `, email)
	return scanUser(row, s.Crypto)
}

func (s *PostgresStore) List(ctx context.Context, excludeProtected bool) ([]User, error) {
	query := `SELECT ` + userColumns + `
    FROM users`
	if excludeProtected {
		query += `
    WHERE NOT is_protected`
	}
	query += `
    ORDER BY created_at, id`
	return s.queryUsers(ctx, query)
}

func (s *PostgresStore) MissingEmployeeID(ctx context.Context) ([]User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+`
    FROM users
    WHERE employee_id IS NULL
    ORDER BY created_at, id`)
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows, s.Crypto)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EmployeeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT employee_id
    FROM users
    WHERE employee_id IS NOT NULL
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetEmployeeID assigns an id only while the record still has none. It
// reports false when another writer got there first.
func (s *PostgresStore) SetEmployeeID(ctx context.Context, id, employeeID string, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users
    SET employee_id = $2, updated_at = $3
    WHERE id = $1 AND employee_id IS NULL
  `, id, employeeID, at)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users
    SET password_hash = $2, updated_at = $3
    WHERE id = $1
  `, id, hash, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users
    SET last_login = $2
    WHERE id = $1
  `, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) ProtectedExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE is_protected)`).Scan(&exists)
	return exists, err
}
