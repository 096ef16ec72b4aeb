package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes bounds every JSON body the service will decode.
const MaxBodyBytes = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error" example:"validation failed"`
	Details []ValidationError `json:"details"`
}

// BindStrict decodes the request body into dst, rejecting unknown fields,
// trailing data and anything failing dst's validate tags. On failure it
// writes a 400 response and returns false.
func BindStrict(c *gin.Context, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil || len(body) > MaxBodyBytes {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body too large or unreadable"})
		return false
	}

	if err := DecodeStrict(body, dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}

	if errs := ValidateStruct(dst); len(errs) > 0 {
		RespondWithValidationErrors(c, errs)
		return false
	}
	return true
}

func DecodeStrict(body []byte, dst interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	if dec.More() {
		return errors.New("malformed request body: trailing data")
	}
	return nil
}

// ValidateStruct validates a struct and returns formatted errors
func ValidateStruct(s interface{}) []ValidationError {
	var errs []ValidationError

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "", Tag: "invalid", Message: err.Error()}}
	}
	for _, fe := range verrs {
		errs = append(errs, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: getErrorMessage(fe.Field(), fe),
		})
	}
	return errs
}

// ValidateVar checks a single value that did not arrive in a struct, such as
// a header, against validate tags and reports failures under field.
func ValidateVar(field string, value interface{}, tag string) []ValidationError {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: field, Tag: "invalid", Message: err.Error()}}
	}
	errs := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, ValidationError{
			Field:   field,
			Tag:     fe.Tag(),
			Message: getErrorMessage(field, fe),
		})
	}
	return errs
}

func getErrorMessage(field string, err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + err.Param()
	case "max":
		return field + " must be at most " + err.Param()
	case "gte":
		return field + " must be greater than or equal to " + err.Param()
	case "gt":
		return field + " must be greater than " + err.Param()
	case "lte":
		return field + " must be less than or equal to " + err.Param()
	case "printascii":
		return field + " must be printable ASCII"
	default:
		return field + " is invalid"
	}
}

func RespondWithValidationErrors(c *gin.Context, errors []ValidationError) {
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Error:   "validation failed",
		Details: errors,
	})
}
