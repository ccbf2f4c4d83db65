package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperrors "github.com/lendfast/origination-engine/pkg/errors"
	"github.com/lendfast/origination-engine/pkg/response"
)

// newValidator builds the request validator shared by the handlers. Decimal
// fields are converted to float64 so numeric tags apply, and errors are
// reported under json field names.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("decimal_gt_zero", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.Float64 && fl.Field().Float() > 0
	})
	_ = v.RegisterValidation("decimal_gte_zero", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.Float64 && fl.Field().Float() >= 0
	})

	return v
}

// validationFields flattens validator errors into a field -> message map.
func validationFields(err error) map[string]string {
	fields := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["request"] = err.Error()
		return fields
	}

	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "this field is required"
		case "decimal_gt_zero", "gt":
			fields[fe.Field()] = "must be greater than zero"
		case "decimal_gte_zero":
			fields[fe.Field()] = "must not be negative"
		case "email":
			fields[fe.Field()] = "must be a valid email address"
		default:
			fields[fe.Field()] = "is invalid"
		}
	}
	return fields
}

// respondError maps service errors onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	var fields apperrors.FieldErrors
	if errors.As(err, &fields) {
		response.ValidationFailed(w, fields)
		return
	}

	var bizErr *apperrors.BusinessError
	if !errors.As(err, &bizErr) {
		response.InternalServerError(w, "Internal server error", err)
		return
	}

	switch bizErr.Code {
	case apperrors.ErrCodeLoanNotFound, apperrors.ErrCodeApplicationNotFound:
		response.NotFound(w, bizErr.Message)
	case apperrors.ErrCodeLoanAlreadyExists, apperrors.ErrCodeAlreadyCompleted, apperrors.ErrCodeSubmitInFlight:
		response.Conflict(w, bizErr.Message, bizErr.Err)
	case apperrors.ErrCodeInvalidLoanTerms,
		apperrors.ErrCodeInvalidPaymentAmount,
		apperrors.ErrCodeNoOutstandingBalance,
		apperrors.ErrCodeLoanAlreadyClosed,
		apperrors.ErrCodeVerificationRequired,
		apperrors.ErrCodeStaleVerification:
		response.BadRequest(w, bizErr.Message, bizErr.Err)
	case apperrors.ErrCodeProviderError:
		response.Error(w, http.StatusBadGateway, bizErr.Message, bizErr.Err)
	default:
		response.InternalServerError(w, bizErr.Message, bizErr.Err)
	}
}
