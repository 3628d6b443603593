package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/clonecademy/clonecademy/core"
)

var (
	// errors
	ErrNotFound            = errors.New("user not found")
	ErrEmailExists         = errors.New("a user with this email already exists")
	ErrUsernameExists      = errors.New("a user with this username already exists")
	ErrModRequestForbidden = errors.New("you are not allowed to request moderator rights now")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when another user owns username or email.
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		ChangeRights(ctx context.Context, usr User, data ChangeRights) (User, error)
		ModRequestStatus(usr User) ModRequestStatus
		RequestMod(ctx context.Context, usr User, data ModRequest) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf, logger: logger}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Update applies uu onto usr. uu must have been validated against usr.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids...)
	return err
}

func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	return svc.sendPasswordResetMail(usr)
}

func (svc *Service) sendPasswordResetMail(usr User) error {
	token := newResetTokens(svc.conf.SecretKey, svc.conf.PasswordResetTimeoutDelta).make(usr)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:              []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:         "Password Reset",
		Category:        core.MailCategoryPasswordReset,
		TemplateName:    "password_reset",
		FrontendBaseURL: svc.conf.FrontendBaseURL,
		TemplateData: map[string]interface{}{
			"Name":     usr.Name,
			"Username": usr.Username,
			"UID":      EncodeUID(usr),
			"Token":    token,
		},
	})
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errors.New("invalid password reset link"))

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidErr
		}
		return errors.Wrap(err, "getting user by ID")
	}
	if err = newResetTokens(svc.conf.SecretKey, svc.conf.PasswordResetTimeoutDelta).check(usr, data.Token); err != nil {
		return invalidErr
	}

	if err = checkPassword(data.Password, usr); err != nil {
		return err
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// ChangeRights grants or revokes a right.
func (svc *Service) ChangeRights(ctx context.Context, usr User, data ChangeRights) (User, error) {
	switch data.Action {
	case ActionPromote:
		if !usr.HasRole(data.Right) {
			usr.Roles = append(usr.Roles, data.Right)
		}
	case ActionDemote:
		roles := make([]string, 0, len(usr.Roles))
		for _, r := range usr.Roles {
			if r != data.Right {
				roles = append(roles, r)
			}
		}
		usr.Roles = roles
	default:
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "action", Error: "invalid action"})
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// ModRequestStatus: a user may ask for moderator rights when they are not a moderator yet
// and their last request is older than the cooldown.
func (svc *Service) ModRequestStatus(usr User) ModRequestStatus {
	requested := !usr.ModRequestedAt.IsZero()
	allowed := !usr.IsModerator() &&
		(!requested || time.Since(usr.ModRequestedAt) > svc.conf.ModRequestCooldown)
	return ModRequestStatus{RequestedMod: requested, Allowed: allowed}
}

// RequestMod records the request and emails the admins the reason.
func (svc *Service) RequestMod(ctx context.Context, usr User, data ModRequest) error {
	if !svc.ModRequestStatus(usr).Allowed {
		return ErrModRequestForbidden
	}

	usr.ModRequestedAt = time.Now().UTC()
	usr.ModRequestReason = data.Reason
	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return errors.Wrap(err, "saving mod request")
	}

	to := svc.adminRecipients(ctx)
	if len(to) == 0 {
		svc.logger.Warn("mod request: no admin to notify", usr)
		return nil
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:              to,
		ReplyTo:         &mail.Address{Name: usr.Name, Address: usr.Email},
		Subject:         "Moderator rights request",
		Category:        core.MailCategoryModRequest,
		TemplateName:    "mod_request",
		FrontendBaseURL: svc.conf.FrontendBaseURL,
		TemplateData: map[string]interface{}{
			"UserID":   usr.ID,
			"Name":     usr.Name,
			"Username": usr.Username,
			"Reason":   data.Reason,
		},
	})
	return nil
}

// adminRecipients returns the configured admin emails, or the active admins' when none is configured.
func (svc *Service) adminRecipients(ctx context.Context) []mail.Address {
	to := make([]mail.Address, 0, len(svc.conf.AdminEmails))
	for _, email := range svc.conf.AdminEmails {
		to = append(to, mail.Address{Address: email})
	}
	if len(to) > 0 {
		return to
	}

	isActive := true
	admins, err := svc.repo.QueryUsers(ctx, &QueryFilter{Roles: []string{RoleAdmin}, IsActive: &isActive}, nil)
	if err != nil {
		svc.logger.Error("mod request: querying admins", errors.Wrap(err, "querying admins"))
		return nil
	}
	for _, a := range admins {
		if a.Email != "" {
			to = append(to, mail.Address{Name: a.Name, Address: a.Email})
		}
	}
	return to
}
