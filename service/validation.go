package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"payment-gateway/models"
	"payment-gateway/provider"
)

// intentValidator checks a PaymentIntent and reports every violated rule.
type intentValidator struct {
	validate   *validator.Validate
	currencies []models.Currency
}

func newIntentValidator(registry *provider.Registry) *intentValidator {
	v := validator.New()
	// Amounts are decimals; gt=0 compares their float value.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("supported_currency", func(fl validator.FieldLevel) bool {
		return registry.Supports(models.Currency(fl.Field().String()))
	})
	return &intentValidator{validate: v, currencies: registry.SupportedCurrencies()}
}

// Check returns one message per invalid field, or nil.
func (iv *intentValidator) Check(intent *models.PaymentIntent) []string {
	err := iv.validate.Struct(intent)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, iv.message(fe))
	}
	return out
}

func (iv *intentValidator) message(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Amount":
		if fe.Tag() == "lte" {
			return "Amount must not exceed " + models.MaxAmount.String() + "."
		}
		return "Amount must be a positive number."
	case "Email":
		return "Invalid email address."
	case "Currency":
		names := make([]string, len(iv.currencies))
		for i, c := range iv.currencies {
			names[i] = string(c)
		}
		return "Unsupported currency. Supported currencies are " + strings.Join(names, ", ") + "."
	case "Reference":
		return "Reference must be at most " + fe.Param() + " characters."
	default:
		return "Invalid value for " + strings.ToLower(fe.Field()) + "."
	}
}
