package checkout

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Form holds the delivery and contact details collected at checkout. Only the contact
// fields travel to the payment gateway; nothing here is stored.
type Form struct {
	Name    string `json:"name" validate:"required,max=160"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone" validate:"required,min=7,max=20"`
	Address string `json:"address" validate:"required,max=500"`
	City    string `json:"city" validate:"required,max=120"`
	Zip     string `json:"zip" validate:"required,max=12"`
}

func (f Form) normalize() Form {
	return Form{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Phone:   strings.TrimSpace(f.Phone),
		Address: strings.TrimSpace(f.Address),
		City:    strings.TrimSpace(f.City),
		Zip:     strings.TrimSpace(f.Zip),
	}
}

// Validate trims the form and reports every missing or malformed field.
func (f Form) Validate() (Form, error) {
	clean := f.normalize()
	if err := validate.Struct(clean); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			details := map[string]string{}
			for _, fe := range errs {
				details[fe.Field()] = validationMessage(fe)
			}
			return clean, pkgerrors.New(pkgerrors.CodeValidation, "please provide all required shipping and contact details").WithDetails(details)
		}
		return clean, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	return clean, nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}
