// Package dispatch implements the single front door every inbound command
// passes through: context validation, the policy allow-list, session and
// MAC checks, rate limiting, and instrumented command routing.
package dispatch

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// validate is a single long-lived validator instance; the package's own
// docs recommend caching it rather than constructing one per call.
var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() { validatorInst = validator.New() })
	return validatorInst
}

// Context is required on every dispatched command. TenantID, SessionID, and
// Actor identify who is calling; UserID, SourceIP, and UserAgent are
// optional fields that sharpen session validation and audit detail.
type Context struct {
	TenantID  string `validate:"required,max=100"`
	SessionID string `validate:"required,max=100"`
	Actor     string `validate:"required,max=50"`

	UserID    string `validate:"omitempty,max=100"`
	SourceIP  string `validate:"omitempty,max=45"`
	UserAgent string `validate:"omitempty,max=512"`
}

// Validate checks that Context carries every field a dispatched command
// requires, failing closed with a BadRequest CoreError.
func (c Context) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeContextInvalid, describeValidationError(err), err)
	}
	return nil
}

// describeValidationError turns the validator's field errors into a single
// human-readable sentence without leaking the struct's Go field tags.
func describeValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid context"
	}
	var parts []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "max":
			parts = append(parts, fe.Field()+" exceeds maximum length")
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return "invalid context: " + strings.Join(parts, ", ")
}

// rateLimitKey builds the per-caller rate-limit key (tenant:actor:command)
// for a command.
func rateLimitKey(tenantID, actor, command string) string {
	return tenantID + ":" + actor + ":" + command
}
