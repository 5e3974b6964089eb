package httpx

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks request DTO struct tags.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(v); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s:%s", fe.Namespace(), fe.Tag()))
			}
		}
		if len(fields) == 0 {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return fmt.Errorf("%w: %s", ErrBadRequest, strings.Join(fields, ", "))
	}
	return nil
}
