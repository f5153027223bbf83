package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func validatorInstance() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("account", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseAccountID(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterTranslation("account", trans,
			func(ut ut.Translator) error {
				return ut.Add("account", "{0} must be a 32-byte hex account id", true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				msg, _ := ut.T("account", fe.Field())
				return msg
			},
		)

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// Validate runs struct validation tags on v and returns the first failure as
// a validation error.
func Validate(v any) error {
	svc := validatorInstance()
	err := svc.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return dErrors.New(dErrors.CodeValidation, verrs[0].Translate(svc.translator))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "validation error")
}

// DecodeJSON decodes a single JSON document into T, rejecting unknown fields
// and trailing data, then validates it.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var dst T
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dst, dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return dst, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON")
	}
	if dec.More() {
		return dst, dErrors.New(dErrors.CodeBadRequest, "unexpected trailing data")
	}
	if err := Validate(dst); err != nil {
		return dst, err
	}
	return dst, nil
}
