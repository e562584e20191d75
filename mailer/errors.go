package mailer

import "fmt"

// SendError is the classified failure contract between the mailer and the
// delivery worker. StatusCode 0 means the request never got an HTTP response
// (dial failure, timeout).
type SendError struct {
	StatusCode int
	Reason     string
}

func (e *SendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("email send failed: %s", e.Reason)
	}
	return fmt.Sprintf("email api error %d: %s", e.StatusCode, e.Reason)
}

// Transient reports whether a retry could plausibly succeed: network failures
// and 5xx responses are transient, 4xx responses (bad recipient, rejected
// payload) are permanent.
func (e *SendError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}
