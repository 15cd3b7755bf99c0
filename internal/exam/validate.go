package exam

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("option", func(fl validator.FieldLevel) bool {
		switch f := fl.Field(); f.Kind() {
		case reflect.String:
			return Option(f.String()).Valid()
		}
		return false
	})
	return v
}

// Validate checks struct tags and wraps failures in ErrInvalidRequest.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, "; "))
}

// ValidatePublish checks an exam and its questions before they are stored.
func ValidatePublish(e Exam, qs []Question) error {
	if err := Validate(e); err != nil {
		return err
	}
	if len(qs) == 0 {
		return fmt.Errorf("%w: exam has no questions", ErrInvalidRequest)
	}
	seen := make(map[int]struct{}, len(qs))
	for i := range qs {
		if err := Validate(qs[i]); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		if _, dup := seen[qs[i].Number]; dup {
			return fmt.Errorf("%w: duplicate question_number %d", ErrInvalidRequest, qs[i].Number)
		}
		seen[qs[i].Number] = struct{}{}
	}
	return nil
}
