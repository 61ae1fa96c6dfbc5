package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Limiter throttles mutating endpoints per tenant, falling back to the
// client IP when no company is supplied.
func Limiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			JSON(w, http.StatusTooManyRequests, ErrorBody{Error: http.StatusText(http.StatusTooManyRequests)})
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if company := strings.TrimSpace(r.Header.Get("X-Company-ID")); company != "" {
		return "company:" + company, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// Actor identifies the caller for audit trails. Authentication happens
// upstream; the header is trusted as given.
func Actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor"))
}

// OptionalRange parses startDate/endDate values. Both empty yields a zero
// range.
func OptionalRange(start, end string) (shared.DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return shared.DateRange{}, nil
	}
	return shared.ParseDateRange(start, end)
}
