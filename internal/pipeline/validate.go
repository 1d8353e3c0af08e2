package pipeline

import (
	"encoding/json"
	"fmt"
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
	})
	return validate
}

// Validate checks the struct tags of a job payload.
func Validate(v any) error {
	return validatorInstance().Struct(v)
}

// Decode unmarshals a job payload and validates it. Unknown fields are ignored.
func Decode(body []byte, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if _, ok := v.(*ResultJob); ok {
		// ResultJob validates its wire form while unmarshaling.
		return nil
	}
	if err := Validate(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
