package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clonecademy/clonecademy/core"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestPasswordPolicyTag(t *testing.T) {
	tests := []struct {
		name string
		pwd  string
		want string
	}{
		{name: "too short", pwd: "Ab1!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Zebra Lamp42!", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no special", pwd: "ZebraLamp42", want: pwdComplexityTag},
		{name: "no upper", pwd: "zebra#lamp42", want: pwdComplexityTag},
		{name: "no digit", pwd: "Zebra#Lamp", want: pwdComplexityTag},
		{name: "similar to name", pwd: "MarkSt0ne!", want: pwdAttrSimTag},
		{name: "common", pwd: "Qwerty123!", want: pwdNoCommonTag},
		{name: "common any case", pwd: "pASSW0RD!", want: pwdNoCommonTag},
		{name: "valid", pwd: "Zebra#Lamp42", want: ""},
		{name: "valid unicode", pwd: "Zèbre#Lampe42", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passwordPolicyTag(tt.pwd, "Mark Stone", "mark", "mark@test.cd"))
		})
	}
}

func TestCheckPassword(t *testing.T) {
	usr := User{Name: "Mark Stone", Username: "mark"}

	assert.NoError(t, checkPassword("Zebra#Lamp42", usr))

	err := checkPassword("short", usr)
	require.IsType(t, &core.ValidationError{}, err)
	vErr := err.(*core.ValidationError)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "password", vErr.Fields[0].Field)
	assert.Equal(t, pwdMinLenText, vErr.Fields[0].Error)
}

func TestUserStructValidation(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name     string
		data     interface{}
		wantTags map[string]string // {field: tag}
	}{
		{
			name: "valid new user",
			data: NewUser{Name: "Mark", Username: "mark_s", Password: "Zebra#Lamp42", PasswordConfirm: "Zebra#Lamp42"},
		},
		{
			name: "no username nor email",
			data: NewUser{Name: "Mark", Password: "Zebra#Lamp42", PasswordConfirm: "Zebra#Lamp42"},
			wantTags: map[string]string{
				"username": usernameOrEmailTag,
				"email":    usernameOrEmailTag,
			},
		},
		{
			name: "weak password and mismatch",
			data: NewUser{Name: "Mark", Email: "mark@test.cd", Password: "password", PasswordConfirm: "other"},
			wantTags: map[string]string{
				"password_confirm": "eqfield",
				"password":         pwdComplexityTag,
			},
		},
		{
			name:     "unknown role",
			data:     NewUser{Name: "Mark", Username: "mark", Password: "Zebra#Lamp42", PasswordConfirm: "Zebra#Lamp42", Roles: []string{"owner"}},
			wantTags: map[string]string{"roles": allRolesTag},
		},
		{
			name: "update without password",
			data: UpdateUser{Name: "Mark", Username: "mark"},
		},
		{
			name:     "update with common password",
			data:     UpdateUser{Name: "Mark", Username: "mark", Password: "P@ssw0rd", PasswordConfirm: "P@ssw0rd"},
			wantTags: map[string]string{"password": pwdNoCommonTag},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.data)
			if len(tt.wantTags) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			got := make(map[string]string)
			for _, fe := range err.(validator.ValidationErrors) {
				got[fe.Field()] = fe.Tag()
			}
			assert.Equal(t, tt.wantTags, got)
		})
	}
}

func TestRequestValidation(t *testing.T) {
	validate := newValidator()

	cr := ChangeRights{Right: " Moderator ", Action: "PROMOTE"}
	require.NoError(t, cr.Validate(validate))
	assert.Equal(t, ChangeRights{Right: RoleModerator, Action: ActionPromote}, cr)
	assert.Error(t, (&ChangeRights{Right: "owner", Action: ActionPromote}).Validate(validate))

	mr := ModRequest{Reason: "  I teach biology  "}
	require.NoError(t, mr.Validate(validate))
	assert.Equal(t, "I teach biology", mr.Reason)
	assert.Error(t, (&ModRequest{Reason: "   "}).Validate(validate))
}
