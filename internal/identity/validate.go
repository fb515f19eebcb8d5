package identity

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"estoque/internal/core"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrDisplayNameTooLong = errors.New("display name too long (max 100 characters)")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooLong    = errors.New("password too long (max 72 bytes)")
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// max= counts runes; bcrypt's limit is in bytes.
	if err := v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	}); err != nil {
		panic(err)
	}
	return v
}

type signUpInput struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"min=6,bcryptlen"`
	DisplayName string `validate:"max=100"`
}

type signInInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// fieldErrors maps validator failures onto the field names used by the API.
var fieldErrors = map[string]struct {
	field string
	err   error
}{
	"Email":       {"email", ErrInvalidEmail},
	"DisplayName": {"displayName", ErrDisplayNameTooLong},
}

func validationError(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	ve := &core.ValidationError{}
	for _, fe := range verrs {
		if fe.Field() == "Password" {
			switch fe.Tag() {
			case "required":
				ve.Add("password", ErrPasswordRequired)
			case "bcryptlen":
				ve.Add("password", ErrPasswordTooLong)
			default:
				ve.Add("password", ErrPasswordTooShort)
			}
			continue
		}
		if m, ok := fieldErrors[fe.Field()]; ok {
			ve.Add(m.field, m.err)
		}
	}
	return ve.OrNil()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
