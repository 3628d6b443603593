package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/user"
	emailsvc "github.com/clonecademy/clonecademy/services/email"
	"github.com/clonecademy/clonecademy/storage/database/sqlxrepos"
	"github.com/clonecademy/clonecademy/tests"
)

func newService(t *testing.T, conf *core.Config) (*user.Service, user.Repository) {
	t.Helper()
	repo := sqlxrepos.NewUserRepository(testutil.OpenDB(t))
	return user.NewService(repo, emailsvc.NewConsoleServiceMock(conf), conf, nil), repo
}

func TestService_CheckUniqueness(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, core.NewTestConfig())
	usr := testutil.CreateUser(t, repo, "Mark", "mark", "mark@test.cd", "Zebra#Lamp42", nil, true)

	tests := []struct {
		name      string
		uname     string
		email     string
		excl      []user.User
		wantField string
	}{
		{name: "free", uname: "john", email: "john@test.cd"},
		{name: "username taken", uname: "mark", email: "john@test.cd", wantField: "username"},
		{name: "email taken", uname: "john", email: "mark@test.cd", wantField: "email"},
		{name: "self excluded", uname: "mark", email: "mark@test.cd", excl: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excl...)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	svc, repo := newService(t, conf)
	usr := testutil.CreateUser(t, repo, "Mark", "mark", "mark@test.cd", "Zebra#Lamp42", nil, true)
	testutil.CreateUser(t, repo, "Gone", "gone", "gone@test.cd", "Zebra#Lamp42", nil, false)

	emailsvc.ResetSentMessages()
	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "nobody@test.cd"))
	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "gone@test.cd"))
	require.NoError(t, svc.RequestPasswordReset(ctx, " MARK@test.cd "))

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mark@test.cd", sent[0].To[0].Address)
	assert.Equal(t, core.MailCategoryPasswordReset, sent[0].Category)
	assert.Nil(t, sent[0].ReplyTo)
	data := sent[0].TemplateData.(map[string]interface{})
	uid, token := data["UID"].(string), data["Token"].(string)
	assert.Contains(t, sent[0].TextContent, "/password-reset/"+uid+"/"+token)

	tests := []struct {
		name      string
		uid       string
		token     string
		pwd       string
		wantField string
		wantErr   bool
	}{
		{name: "bad uid", uid: "!!", token: token, pwd: "Lamp#Zebra42", wantErr: true},
		{name: "unknown uid", uid: user.EncodeUID(user.User{ID: "nobody"}), token: token, pwd: "Lamp#Zebra42", wantErr: true},
		{name: "bad token", uid: uid, token: "abc-def", pwd: "Lamp#Zebra42", wantErr: true},
		{name: "weak password", uid: uid, token: token, pwd: "12345678", wantField: "password", wantErr: true},
		{name: "success", uid: uid, token: token, pwd: "Lamp#Zebra42"},
		{name: "token used", uid: uid, token: token, pwd: "Other#Pass42", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: tt.uid, Token: tt.token, Password: tt.pwd})
			if !tt.wantErr {
				require.NoError(t, err)
				got, err := svc.GetByID(ctx, usr.ID)
				require.NoError(t, err)
				assert.NoError(t, got.CheckPassword(tt.pwd))
				return
			}
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			if tt.wantField != "" {
				require.Len(t, vErr.Fields, 1)
				assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			}
		})
	}
}

func TestService_ChangeRights(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, core.NewTestConfig())
	usr := testutil.CreateUser(t, repo, "Mark", "mark", "mark@test.cd", "Zebra#Lamp42", nil, true)

	usr, err := svc.ChangeRights(ctx, usr, user.ChangeRights{Right: user.RoleModerator, Action: user.ActionPromote})
	require.NoError(t, err)
	assert.True(t, usr.IsModerator())
	assert.False(t, usr.IsAdmin())

	// promoting twice keeps a single role
	usr, err = svc.ChangeRights(ctx, usr, user.ChangeRights{Right: user.RoleModerator, Action: user.ActionPromote})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleModerator}, usr.Roles)

	usr, err = svc.ChangeRights(ctx, usr, user.ChangeRights{Right: user.RoleAdmin, Action: user.ActionPromote})
	require.NoError(t, err)
	usr, err = svc.ChangeRights(ctx, usr, user.ChangeRights{Right: user.RoleModerator, Action: user.ActionDemote})
	require.NoError(t, err)
	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleAdmin}, got.Roles)
	// admins are moderators too
	assert.True(t, got.IsModerator())

	_, err = svc.ChangeRights(ctx, usr, user.ChangeRights{Right: user.RoleAdmin, Action: "fire"})
	assert.Error(t, err)
}

func TestService_RequestMod(t *testing.T) {
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		conf := core.NewTestConfig()
		svc, _ := newService(t, conf)
		tests := []struct {
			name string
			usr  user.User
			want user.ModRequestStatus
		}{
			{name: "never asked", usr: user.User{}, want: user.ModRequestStatus{Allowed: true}},
			{
				name: "asked recently",
				usr:  user.User{ModRequestedAt: time.Now().Add(-time.Hour)},
				want: user.ModRequestStatus{RequestedMod: true},
			},
			{
				name: "cooldown over",
				usr:  user.User{ModRequestedAt: time.Now().Add(-conf.ModRequestCooldown - time.Hour)},
				want: user.ModRequestStatus{RequestedMod: true, Allowed: true},
			},
			{name: "moderator", usr: user.User{Roles: []string{user.RoleModerator}}, want: user.ModRequestStatus{}},
			{name: "admin", usr: user.User{Roles: []string{user.RoleAdmin}}, want: user.ModRequestStatus{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, svc.ModRequestStatus(tt.usr))
			})
		}
	})

	t.Run("configured admin emails", func(t *testing.T) {
		svc, repo := newService(t, core.NewTestConfig())
		usr := testutil.CreateUser(t, repo, "Mark", "mark", "mark@test.cd", "Zebra#Lamp42", nil, true)

		emailsvc.ResetSentMessages()
		require.NoError(t, svc.RequestMod(ctx, usr, user.ModRequest{Reason: "I teach genetics"}))

		sent := emailsvc.Sent()
		require.Len(t, sent, 1)
		require.Len(t, sent[0].To, 1)
		assert.Equal(t, "staff@test.cd", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "I teach genetics")
		require.NotNil(t, sent[0].ReplyTo)
		assert.Equal(t, "mark@test.cd", sent[0].ReplyTo.Address)
		assert.Equal(t, core.MailCategoryModRequest, sent[0].Category)

		usr, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, "I teach genetics", usr.ModRequestReason)
		assert.Equal(t, user.ModRequestStatus{RequestedMod: true}, svc.ModRequestStatus(usr))

		// a second request within the cooldown is refused
		assert.Equal(t, user.ErrModRequestForbidden, svc.RequestMod(ctx, usr, user.ModRequest{Reason: "again"}))
		assert.Len(t, emailsvc.Sent(), 1)
	})

	t.Run("falls back to admins", func(t *testing.T) {
		conf := core.NewTestConfig()
		conf.AdminEmails = nil
		svc, repo := newService(t, conf)
		testutil.CreateUser(t, repo, "Admin", "admin", "admin@test.cd", "Zebra#Lamp42", []string{user.RoleAdmin}, true)
		testutil.CreateUser(t, repo, "Retired", "retired", "retired@test.cd", "Zebra#Lamp42", []string{user.RoleAdmin}, false)
		usr := testutil.CreateUser(t, repo, "Mark", "mark", "mark@test.cd", "Zebra#Lamp42", nil, true)

		emailsvc.ResetSentMessages()
		require.NoError(t, svc.RequestMod(ctx, usr, user.ModRequest{Reason: "I teach genetics"}))

		sent := emailsvc.Sent()
		require.Len(t, sent, 1)
		require.Len(t, sent[0].To, 1)
		assert.Equal(t, "admin@test.cd", sent[0].To[0].Address)
	})

	t.Run("moderators cannot ask", func(t *testing.T) {
		svc, repo := newService(t, core.NewTestConfig())
		mod := testutil.CreateUser(t, repo, "Mod", "mod", "mod@test.cd", "Zebra#Lamp42", []string{user.RoleModerator}, true)
		assert.Equal(t, user.ErrModRequestForbidden, svc.RequestMod(ctx, mod, user.ModRequest{Reason: "more"}))
	})
}
