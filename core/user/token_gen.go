package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")

	tokenEpoch    = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	tokenDayCodec = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// EncodeUID is the user id as carried by password reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	return string(id), err
}

// resetTokens makes one-shot password reset tokens of the form "<day>-<signature>".
// The signature covers the password hash and the last login, so a token dies once
// the password changes or the user logs in.
type resetTokens struct {
	key     [sha256.Size]byte
	maxDays int
	now     func() time.Time
}

func newResetTokens(secretKey string, timeout time.Duration) resetTokens {
	return resetTokens{
		key:     sha256.Sum256([]byte("clonecademy.password-reset:" + secretKey)),
		maxDays: int(timeout / (24 * time.Hour)),
		now:     time.Now,
	}
}

func (rt resetTokens) make(usr User) string {
	return rt.forDay(usr, dayNumber(rt.now()))
}

func (rt resetTokens) check(usr User, token string) error {
	dayPart, _, found := strings.Cut(token, "-")
	if !found {
		return errInvalidToken
	}
	raw, err := tokenDayCodec.DecodeString(dayPart)
	if err != nil {
		return errInvalidToken
	}
	day, err := strconv.Atoi(string(raw))
	if err != nil {
		return errInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(rt.forDay(usr, day)), []byte(token)) != 1 {
		return errInvalidToken
	}
	if dayNumber(rt.now())-day > rt.maxDays {
		return errTokenExpired
	}
	return nil
}

func (rt resetTokens) forDay(usr User, day int) string {
	dayStr := strconv.Itoa(day)

	mac := hmac.New(sha256.New, rt.key[:])
	mac.Write([]byte(usr.ID))
	mac.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		mac.Write([]byte(strconv.FormatInt(usr.LastLogin.Unix(), 10)))
	}
	mac.Write([]byte(dayStr))

	return tokenDayCodec.EncodeToString([]byte(dayStr)) + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// dayNumber counts the started days since tokenEpoch.
func dayNumber(t time.Time) int {
	d := t.Sub(tokenEpoch)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
