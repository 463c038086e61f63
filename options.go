package vellum

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// loadOptions collects everything the functional options configure.
type loadOptions struct {
	Password         string `validate:"omitempty,max=127"`
	EncryptionPolicy string `validate:"oneof=reject password"`
	MaxObjectDepth   int    `validate:"gte=0,lte=10000"`
}

var validate = validator.New()

func defaultOptions() loadOptions {
	return loadOptions{
		EncryptionPolicy: PolicyReject,
	}
}

func (o loadOptions) validateOptions() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid load options: %w", err)
	}
	return nil
}

// Option configures Load and Open.
type Option func(*loadOptions)

// WithPassword supplies the password to try against an encrypted
// document and switches the encryption policy to PolicyPassword.
func WithPassword(password string) Option {
	return func(o *loadOptions) {
		o.Password = password
		o.EncryptionPolicy = PolicyPassword
	}
}

// WithEncryptionPolicy selects how encrypted documents are handled:
// PolicyReject refuses anything that needs a password, PolicyPassword
// authenticates with the password from WithPassword.
func WithEncryptionPolicy(policy string) Option {
	return func(o *loadOptions) {
		o.EncryptionPolicy = policy
	}
}

// WithMaxObjectDepth caps reference nesting during resolution, guarding
// against pathologically nested documents. Zero keeps the default.
func WithMaxObjectDepth(depth int) Option {
	return func(o *loadOptions) {
		o.MaxObjectDepth = depth
	}
}
