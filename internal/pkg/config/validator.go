package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %s", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("vehicle %q configured twice", v.ID)
		}
		seen[v.ID] = struct{}{}
	}

	return c.AuditParams().Validate()
}
