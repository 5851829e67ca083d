package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. All statements are
// parameterized; the unique constraints on users(email) and
// users(username) arbitrate concurrent registration.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts(context.Context) AccountStore { return &accountStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore       { return &roleStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// uniqueViolation maps the Postgres 23505 class onto ErrConflict.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Account store ------------------------------------------------------------
type accountStore struct{ db *sql.DB }

const accountColumns = `u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name,
	       u.phone, u.department, u.employee_id, u."group", u.active,
	       u.created_at, u.updated_at, u.last_login,
	       coalesce(string_agg(r.name, ',') filter (where r.name is not null), '') as roles,
	       coalesce(bool_or(r.name ilike '%admin%'), false) as is_admin`

const accountJoins = `from users u
	 left join user_roles ur on ur.account_id = u.id and ur.active
	 left join roles r on r.id = ur.role_id and r.active`

func (s *accountStore) Create(ctx context.Context, acct *Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, username, password_hash, first_name, last_name,
		                   phone, department, employee_id, "group", active)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		acct.ID, acct.Email, acct.Username, acct.PasswordHash, acct.FirstName, acct.LastName,
		acct.Phone, acct.Department, acct.EmployeeID, acct.Group, acct.Active,
	)
	if uniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` `+accountJoins+`
		 where u.id = $1
		 group by u.id`, id)
	return scanAccount(row)
}

func (s *accountStore) FindByEmailOrUsername(ctx context.Context, email, username string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` `+accountJoins+`
		 where (u.email = $1 or u.username = $2) and u.active
		 group by u.id`, email, username)
	return scanAccount(row)
}

func (s *accountStore) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login = now() where id = $1`, id)
	return err
}

func (s *accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		acct      Account
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&acct.ID, &acct.Email, &acct.Username, &acct.PasswordHash, &acct.FirstName, &acct.LastName,
		&acct.Phone, &acct.Department, &acct.EmployeeID, &acct.Group, &acct.Active,
		&acct.CreatedAt, &acct.UpdatedAt, &lastLogin,
		&acct.Roles, &acct.Admin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		acct.LastLogin = &t
	}
	return &acct, nil
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db *sql.DB }

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, active, created_at from roles where name = $1 and active`, name)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Active, &role.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) Assign(ctx context.Context, assignment Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(id, account_id, role_id, active)
		 values($1,$2,$3,$4) on conflict do nothing`,
		assignment.ID, assignment.AccountID, assignment.RoleID, assignment.Active,
	)
	return err
}

// Refresh-token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, account_id, token_hash, expires_at)
		 values($1,$2,$3,$4)`,
		tok.ID, tok.AccountID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

func (s *refreshTokenStore) FindActive(ctx context.Context, accountID, tokenHash string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select rt.id, rt.account_id, rt.token_hash, rt.expires_at, rt.revoked, rt.created_at
		 from refresh_tokens rt
		 join users u on u.id = rt.account_id
		 where rt.token_hash = $1 and rt.account_id = $2
		   and not rt.revoked and rt.expires_at > now() and u.active`,
		tokenHash, accountID)
	var tok RefreshToken
	err := row.Scan(&tok.ID, &tok.AccountID, &tok.TokenHash, &tok.ExpiresAt, &tok.Revoked, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where token_hash = $1 and not revoked`, tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *refreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where account_id = $1 and not revoked`, accountID)
	return err
}
