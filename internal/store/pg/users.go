package pg

import (
	"context"
	"database/sql"
	"errors"

	"cotbi.org/internal/user"
)

type UserStore struct {
	db *sql.DB
}

var _ user.Store = (*UserStore)(nil)

const userColumns = `id, name, lastname, email, password_hash, email_confirmed, root, created_at, seq`

func scanUser(row interface{ Scan(...any) error }) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Name, &u.Lastname, &u.Email, &u.PasswordHash, &u.EmailConfirmed, &u.Root, &u.CreatedAt, &u.Seq); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *UserStore) Get(ctx context.Context, id string) (user.User, error) {
	return s.userBy(ctx, `id = $1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return s.userBy(ctx, `email = $1`, email)
}

func (s *UserStore) userBy(ctx context.Context, where string, arg any) (user.User, error) {
	if s.db == nil {
		return user.User{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *UserStore) ListRoot(ctx context.Context) ([]user.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users where root order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *UserStore) Save(ctx context.Context, u user.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, name, lastname, email, password_hash, email_confirmed, root, created_at, seq)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		on conflict (id) do update set
			name = excluded.name,
			lastname = excluded.lastname,
			email = excluded.email,
			password_hash = excluded.password_hash,
			email_confirmed = excluded.email_confirmed,
			root = excluded.root,
			seq = excluded.seq
	`, u.ID, u.Name, u.Lastname, u.Email, u.PasswordHash, u.EmailConfirmed, u.Root, u.CreatedAt, u.Seq)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return user.ErrDuplicateEmail
		}
		return err
	}
	return nil
}
