package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/user"
	"github.com/clonecademy/clonecademy/tests"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testutil.OpenDB(t))

	now := time.Now().UTC()
	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@test.cd", "pwd", []string{user.RoleAdmin}, true, now.Add(-time.Hour))
	mod := testutil.CreateUser(t, repo, "Mod Erator", "mod", "mod@test.cd", "pwd", []string{user.RoleModerator}, true, now)
	inactive := testutil.CreateUser(t, repo, "Gone", "gone", "", "pwd", nil, false, now.Add(time.Hour))

	t.Run("get", func(t *testing.T) {
		usr, err := repo.GetUser(ctx, user.GetFilter{ID: admin.ID})
		require.NoError(t, err)
		assert.Equal(t, admin.Username, usr.Username)
		assert.Equal(t, []string{user.RoleAdmin}, usr.Roles)
		assert.NoError(t, usr.CheckPassword("pwd"))

		usr, err = repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "mod@test.cd"})
		require.NoError(t, err)
		assert.Equal(t, mod.ID, usr.ID)

		usr, err = repo.GetUser(ctx, user.GetFilter{Username: "gone"})
		require.NoError(t, err)
		assert.Equal(t, "", usr.Email)
		assert.Empty(t, usr.Roles)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Email: "nobody@test.cd"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUniqueness(ctx, "admin", "new@test.cd"))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "newbie", "mod@test.cd"))
		assert.NoError(t, repo.CheckUniqueness(ctx, "admin", "admin@test.cd", admin))
		// empty emails never collide
		assert.NoError(t, repo.CheckUniqueness(ctx, "newbie", ""))
	})

	t.Run("query", func(t *testing.T) {
		isActive := false
		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all", want: []string{admin.ID, mod.ID, inactive.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "ERATOR"}, want: []string{mod.ID}},
			{name: "role", filter: &user.QueryFilter{Roles: []string{user.RoleModerator, user.RoleAdmin}}, want: []string{admin.ID, mod.ID}},
			{name: "inactive", filter: &user.QueryFilter{IsActive: &isActive}, want: []string{inactive.ID}},
			{name: "created from", filter: &user.QueryFilter{CreatedFrom: now.Add(-time.Minute)}, want: []string{mod.ID, inactive.ID}},
			{
				name:     "ordering",
				ordering: []core.DBOrdering{{Field: "username", Ascending: false}},
				want:     []string{mod.ID, inactive.ID, admin.ID},
			},
			{
				name:     "unknown ordering is ignored",
				ordering: []core.DBOrdering{{Field: "password_hash; DROP TABLE users", Ascending: true}},
				want:     []string{admin.ID, mod.ID, inactive.ID},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				ids := make([]string, 0, len(users))
				for _, u := range users {
					ids = append(ids, u.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		usr := mod
		usr.Name = "Renamed"
		usr.Roles = []string{user.RoleModerator, user.RoleAdmin}
		usr.ModRequestedAt = now
		usr.ModRequestReason = "I know things"
		_, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: mod.ID})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.True(t, got.IsAdmin())
		assert.Equal(t, "I know things", got.ModRequestReason)
		assert.WithinDuration(t, now, got.ModRequestedAt, time.Second)

		_, err = repo.UpdateUser(ctx, user.User{ID: "0f4c3c05-9f06-4dc8-8ed5-2b0b1e2a5f10"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("delete", func(t *testing.T) {
		cnt, err := repo.DeleteUsersByID(ctx, inactive.ID, "0f4c3c05-9f06-4dc8-8ed5-2b0b1e2a5f10")
		require.NoError(t, err)
		assert.Equal(t, 1, cnt)
		_, err = repo.GetUser(ctx, user.GetFilter{ID: inactive.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}
