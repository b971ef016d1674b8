package catalog

import (
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bidwire/auction-exchange-backend/internal/domain/auction"
	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// requestValidator checks request shape before the domain constructors run.
// The constructors still own trimming and the cross-field pricing rules.
var requestValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "category", validCategory)
	mustRegister(v, "condition", validCondition)
	mustRegister(v, "price", validPrice)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %q validation: %v", tag, err))
	}
}

func validCategory(fl validator.FieldLevel) bool {
	return auction.Category(fl.Field().String()).IsValid()
}

func validCondition(fl validator.FieldLevel) bool {
	return auction.Condition(fl.Field().String()).IsValid()
}

// validPrice accepts positive amounts that fit the catalog price columns.
func validPrice(fl validator.FieldLevel) bool {
	m, ok := fl.Field().Interface().(values.Money)
	return ok && m.IsPositive() && m.FitsPrice()
}

// checkRequest maps the first tag failure onto a domain validation error so
// callers see one error type regardless of which layer rejected the input.
func checkRequest(req any) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		f := fieldErrs[0]
		return errors.NewValidationError("INVALID_REQUEST",
			fmt.Sprintf("%s fails %q", f.Field(), f.Tag()))
	}
	return errors.NewValidationError("INVALID_REQUEST", "malformed request").WithCause(err)
}
