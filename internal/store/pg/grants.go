package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cotbi.org/internal/auth"
)

// GrantStore is the durable permission table.
type GrantStore struct {
	db *sql.DB
}

var _ auth.GrantStore = (*GrantStore)(nil)

const grantColumns = `id, user_id, company_id, role, created_at, seq`

func scanGrant(row interface{ Scan(...any) error }) (auth.Grant, error) {
	var (
		g    auth.Grant
		role string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.CompanyID, &role, &g.CreatedAt, &g.Seq); err != nil {
		return auth.Grant{}, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return auth.Grant{}, err
	}
	g.Role = parsed
	return g, nil
}

func (s *GrantStore) Get(ctx context.Context, id string) (auth.Grant, error) {
	if s.db == nil {
		return auth.Grant{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `select `+grantColumns+` from permissions where id = $1`, id)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Grant{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Grant{}, err
	}
	return g, nil
}

func (s *GrantStore) GrantsFor(ctx context.Context, userID string, companyIDs []string) ([]auth.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if len(companyIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(companyIDs))
	args := make([]any, 0, len(companyIDs)+1)
	args = append(args, userID)
	for i, id := range companyIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := `select ` + grantColumns + ` from permissions where user_id = $1 and company_id in (` +
		strings.Join(placeholders, ", ") + `)`
	return s.listGrants(ctx, query, args...)
}

func (s *GrantStore) ListByUser(ctx context.Context, userID string) ([]auth.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return s.listGrants(ctx, `select `+grantColumns+` from permissions where user_id = $1 order by id`, userID)
}

func (s *GrantStore) ListByCompany(ctx context.Context, companyID string) ([]auth.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return s.listGrants(ctx, `select `+grantColumns+` from permissions where company_id = $1 order by id`, companyID)
}

func (s *GrantStore) listGrants(ctx context.Context, query string, args ...any) ([]auth.Grant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *GrantStore) Save(ctx context.Context, g auth.Grant) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, user_id, company_id, role, created_at, seq)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (id) do update set
			role = excluded.role,
			seq = excluded.seq
	`, g.ID, g.UserID, g.CompanyID, g.Role.String(), g.CreatedAt, g.Seq)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: user or company does not exist", auth.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func (s *GrantStore) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}
