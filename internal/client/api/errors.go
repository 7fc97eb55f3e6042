package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/netx"
	"github.com/dmitrijs2005/civilforms/internal/security"
)

var ErrUnavailable = errors.New("server unavailable")

type errorBody struct {
	Error             string            `json:"error"`
	Fields            map[string]string `json:"fields,omitempty"`
	RetryAfterSeconds int               `json:"retry_after_seconds,omitempty"`
}

// check turns an unexpected response into the error the server reported,
// mapped back onto the shared sentinels.
func check(resp *http.Response, want ...int) error {
	err := netx.CheckResponse(resp, want...)
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return err
	}

	var body errorBody
	if jerr := json.Unmarshal(se.Body, &body); jerr != nil || body.Error == "" {
		body.Error = http.StatusText(se.Code)
	}

	switch se.Code {
	case http.StatusBadRequest:
		switch {
		case len(body.Fields) > 0:
			return forms.FieldErrors(body.Fields)
		case body.Error == common.ErrSecurityViolation.Error():
			return common.ErrSecurityViolation
		}
		return fmt.Errorf("%w: %s", common.ErrorValidation, body.Error)
	case http.StatusUnauthorized:
		if body.Error == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return fmt.Errorf("%w: %s", common.ErrInvalidToken, body.Error)
	case http.StatusForbidden:
		if body.Error == common.ErrSubmissionBlocked.Error() {
			return common.ErrSubmissionBlocked
		}
		return fmt.Errorf("%w: %s", common.ErrPermissionDenied, body.Error)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, body.Error)
	case http.StatusRequestTimeout:
		return common.ErrUploadTimeout
	case http.StatusTooManyRequests:
		secs := body.RetryAfterSeconds
		if h, herr := strconv.Atoi(resp.Header.Get("Retry-After")); herr == nil && h > secs {
			secs = h
		}
		return &security.RateLimitError{RetryAfter: time.Duration(secs) * time.Second}
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return fmt.Errorf("%w: %s", ErrUnavailable, body.Error)
	}
	return fmt.Errorf("%w: %s", common.ErrorInternal, body.Error)
}
