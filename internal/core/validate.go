package core

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// "targetname" applies ValidateName through struct tags.
		_ = validate.RegisterValidation("targetname", func(fl validator.FieldLevel) bool {
			return ValidateName(fl.Field().String()) == nil
		})
	})
	return validate
}

// ValidateStruct runs tag-based validation on v. The returned error lists
// every failing field as "<namespace>: <rule>" in a stable order.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", trimRootNamespace(fe.Namespace()), rule))
	}
	return stderrors.New(strings.Join(msgs, "; "))
}

// trimRootNamespace drops the leading struct type name from a validator
// namespace ("Settings.Fetch.Workers" becomes "Fetch.Workers").
func trimRootNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
