// Package netx holds small HTTP helpers shared by API clients.
package netx

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 4 << 10

// StatusError is a response whose status code was not expected.
type StatusError struct {
	Code   int
	Status string
	Body   []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status: %s; body: %s", e.Status, string(e.Body))
}

// CheckResponse returns nil when resp carries one of the wanted codes, and
// a *StatusError with the start of the body otherwise. Without wanted codes
// any 2xx is accepted.
func CheckResponse(resp *http.Response, want ...int) error {
	if len(want) == 0 && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	for _, c := range want {
		if resp.StatusCode == c {
			return nil
		}
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: b}
}

// CountingReader reports the running byte count after every Read.
type CountingReader struct {
	R      io.Reader
	OnRead func(total int64)

	n atomic.Int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	if n > 0 {
		total := c.n.Add(int64(n))
		if c.OnRead != nil {
			c.OnRead(total)
		}
	}
	return n, err
}

// Count returns the bytes read so far.
func (c *CountingReader) Count() int64 { return c.n.Load() }
