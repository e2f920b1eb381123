package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cotbi.org/internal/company"
)

type CompanyStore struct {
	db *sql.DB
}

var _ company.Store = (*CompanyStore)(nil)

const companyColumns = `id, name, activity, url, parent_id, created_at, deleted_at, seq`

func scanCompany(row interface{ Scan(...any) error }) (company.Company, error) {
	var (
		c        company.Company
		activity sql.NullString
		url      sql.NullString
		parentID sql.NullString
		deleted  sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &activity, &url, &parentID, &c.CreatedAt, &deleted, &c.Seq); err != nil {
		return company.Company{}, err
	}
	c.Activity = activity.String
	c.URL = url.String
	c.ParentID = parentID.String
	if deleted.Valid {
		t := deleted.Time
		c.DeletedAt = &t
	}
	return c, nil
}

func (s *CompanyStore) Get(ctx context.Context, id string) (company.Company, error) {
	if s.db == nil {
		return company.Company{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+companyColumns+`
		from companies
		where id = $1
	`, id)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return company.Company{}, company.ErrNotFound
	}
	if err != nil {
		return company.Company{}, err
	}
	return c, nil
}

func (s *CompanyStore) GetByURL(ctx context.Context, url string) (company.Company, error) {
	if s.db == nil {
		return company.Company{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+companyColumns+`
		from companies
		where url = $1 and deleted_at is null
	`, url)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return company.Company{}, company.ErrNotFound
	}
	if err != nil {
		return company.Company{}, err
	}
	return c, nil
}

func (s *CompanyStore) List(ctx context.Context, includeDeleted bool) ([]company.Company, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `select ` + companyColumns + ` from companies`
	if !includeDeleted {
		query += ` where deleted_at is null`
	}
	query += ` order by id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []company.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CompanyStore) ChildrenOf(ctx context.Context, id string) ([]company.Company, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+companyColumns+`
		from companies
		where parent_id = $1 and deleted_at is null
		order by id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []company.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CompanyStore) Save(ctx context.Context, c company.Company) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into companies (id, name, activity, url, parent_id, created_at, deleted_at, seq)
		values ($1, $2, nullif($3, ''), nullif($4, ''), nullif($5, ''), $6, $7, $8)
		on conflict (id) do update set
			name = excluded.name,
			activity = excluded.activity,
			url = excluded.url,
			parent_id = excluded.parent_id,
			deleted_at = excluded.deleted_at,
			seq = excluded.seq
	`, c.ID, c.Name, c.Activity, c.URL, c.ParentID, c.CreatedAt, c.DeletedAt, c.Seq)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %q", company.ErrDuplicateURL, c.URL)
		}
		return err
	}
	return nil
}
