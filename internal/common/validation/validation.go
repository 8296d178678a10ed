// Package validation configures the shared struct validator.
package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"idcard-studio/internal/studio/fields"
)

const fieldIDTag = "fieldid"

// Validator wraps validator.Validate with an English translator.
type Validator struct {
	*validator.Validate
	translator ut.Translator
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(fieldIDTag, func(fl validator.FieldLevel) bool {
		return fields.ValidID(fl.Field().String())
	})
	_ = v.RegisterTranslation(fieldIDTag, translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " may only contain letters, digits, '.', '_' and '-'"
		})

	return &Validator{Validate: v, translator: translator}
}

// Fields flattens a validation error into field -> message. Non-validation
// errors yield nil.
func (v *Validator) Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

// Message joins Fields into one line, sorted by field name.
func (v *Validator) Message(err error) string {
	fieldErrs := v.Fields(err)
	if fieldErrs == nil {
		return err.Error()
	}
	keys := make([]string, 0, len(fieldErrs))
	for k := range fieldErrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fieldErrs[k])
	}
	return strings.Join(parts, "; ")
}
