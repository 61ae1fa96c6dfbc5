package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/shared"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSON strictly decodes the request body into target and validates it.
// Unknown fields, trailing data and failed validation tags all yield a
// ValidationError.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Validation("request body is required")
		}
		return shared.Validation("malformed request body: %v", err)
	}
	if dec.More() {
		return shared.Validation("request body must contain a single JSON object")
	}
	return Validate(target)
}

// Validate runs struct validation tags and flattens failures.
func Validate(target any) error {
	err := validate.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.Validation("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return shared.Validation("%s", strings.Join(msgs, "; "))
}

// QueryInt64 parses an optional int64 query parameter. Zero means absent.
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, shared.Validation("%s must be a positive integer", name)
	}
	return v, nil
}

// CompanyID reads companyId from the query string, falling back to the
// X-Company-ID header set by upstream collaborators.
func CompanyID(r *http.Request) (int64, error) {
	id, err := QueryInt64(r, "companyId")
	if err != nil || id != 0 {
		return id, err
	}
	raw := strings.TrimSpace(r.Header.Get("X-Company-ID"))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, shared.Validation("X-Company-ID must be a positive integer")
	}
	return v, nil
}
