package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/geocoder89/eventreg/internal/validation"
)

// BindJSON decodes and validates the body into out. Failures come back as
// *validation.Error, except an oversized body which keeps its
// *http.MaxBytesError.
func BindJSON(ctx *gin.Context, out any) error {
	if err := ctx.ShouldBindJSON(out); err != nil {
		return parseBindError(err, out)
	}
	return nil
}

func parseBindError(err error, out any) error {
	// validator errors (struct binding tags)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return validation.FromValidator(out, verrs)
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}

	// in the event of a type mismatch
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := strings.TrimSpace(typeErr.Field)
		if field == "" {
			field = "body"
		}

		return validation.ForFields(out, []validation.FieldError{{
			Field:   field,
			Rule:    "type",
			Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
		}})
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return validation.New("Invalid JSON body", validation.FieldError{
			Field:   "body",
			Rule:    "json",
			Message: "must be a valid JSON object",
		})
	}

	// final fallback if the error could not be deciphered
	return validation.New("Invalid request body", validation.FieldError{
		Field:   "body",
		Rule:    "json",
		Message: err.Error(),
	})
}
