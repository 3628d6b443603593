package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/user"
)

const userColumns = `"id", "name", "username", "email", "is_active", "roles", "password_hash",
	"created_at", "updated_at", "last_login", "mod_requested_at", "mod_request_reason"`

var userOrderings = []string{"name", "username", "email", "is_active", "created_at", "updated_at", "last_login"}

type userRow struct {
	ID               string      `db:"id"`
	Name             string      `db:"name"`
	Username         null.String `db:"username"`
	Email            null.String `db:"email"`
	IsActive         bool        `db:"is_active"`
	Roles            string      `db:"roles"`
	PasswordHash     []byte      `db:"password_hash"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
	LastLogin        null.Time   `db:"last_login"`
	ModRequestedAt   null.Time   `db:"mod_requested_at"`
	ModRequestReason null.String `db:"mod_request_reason"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// roles are stored as ",role1,role2," so that a role can be matched with LIKE.
func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return "," + strings.Join(roles, ",") + ","
}

func splitRoles(s string) []string {
	roles := make([]string, 0, 2)
	for _, r := range strings.Split(s, ",") {
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:               usr.ID,
		Name:             usr.Name,
		Username:         null.NewString(usr.Username, usr.Username != ""),
		Email:            null.NewString(usr.Email, usr.Email != ""),
		IsActive:         usr.IsActive,
		Roles:            joinRoles(usr.Roles),
		PasswordHash:     usr.PasswordHash,
		CreatedAt:        usr.CreatedAt.UTC(),
		UpdatedAt:        usr.UpdatedAt.UTC(),
		LastLogin:        nullTime(usr.LastLogin),
		ModRequestedAt:   nullTime(usr.ModRequestedAt),
		ModRequestReason: null.NewString(usr.ModRequestReason, usr.ModRequestReason != ""),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:               row.ID,
		Name:             row.Name,
		Username:         row.Username.String,
		Email:            row.Email.String,
		IsActive:         row.IsActive,
		Roles:            splitRoles(row.Roles),
		PasswordHash:     row.PasswordHash,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
		ModRequestReason: row.ModRequestReason.String,
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	if row.ModRequestedAt.Valid {
		usr.ModRequestedAt = row.ModRequestedAt.Time.UTC()
	}
	return usr
}

// trapNoRowsErr maps sql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	check := func(col, val string, errExists error) error {
		if val == "" {
			return nil
		}
		q := `SELECT "id" FROM "users" WHERE ` + col + ` = ?`
		args := []interface{}{val}
		for _, u := range excludedUsers {
			q += ` AND "id" <> ?`
			args = append(args, u.ID)
		}
		var ids []string
		if err := repo.db.SelectContext(ctx, &ids, repo.db.Rebind(q+" LIMIT 1"), args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if len(ids) > 0 {
			return errExists
		}
		return nil
	}

	if err := check(`"username"`, username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check(`"email"`, email, user.ErrEmailExists)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.toRow(usr)
	q := `INSERT INTO "users" (` + userColumns + `) VALUES (
		:id, :name, :username, :email, :is_active, :roles, :password_hash,
		:created_at, :updated_at, :last_login, :mod_requested_at, :mod_request_reason)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			where = append(where, `(LOWER("name") LIKE ? OR LOWER("username") LIKE ? OR LOWER("email") LIKE ?)`)
			args = append(args, val, val, val)
		}
		// users with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, `"roles" LIKE ?`)
				args = append(args, "%,"+role+",%")
			}
			where = append(where, "("+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			where = append(where, `"is_active" = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, `"created_at" >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, `"created_at" <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := `SELECT ` + userColumns + ` FROM "users"`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(core.FilterOrderings(ordering, userOrderings...), `"created_at" ASC`)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = `"id" = ?`, []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = `"username" = ?`, []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = `"email" = ?`, []interface{}{filter.Email}
	case filter.UsernameOrEmail != "":
		cond, args = `("username" = ? OR "email" = ?)`, []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "users" WHERE ` + cond + ` LIMIT 1`)
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.toRow(usr)
	q := `UPDATE "users" SET
		"name" = :name, "username" = :username, "email" = :email, "is_active" = :is_active,
		"roles" = :roles, "password_hash" = :password_hash, "updated_at" = :updated_at,
		"last_login" = :last_login, "mod_requested_at" = :mod_requested_at,
		"mod_request_reason" = :mod_request_reason
		WHERE "id" = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`DELETE FROM "users" WHERE "id" IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

// orderBy renders an ORDER BY clause; orderings must already be whitelisted.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, `"`+ord.Field+`" `+strings.TrimPrefix(ord.String(), ord.Field+" "))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
