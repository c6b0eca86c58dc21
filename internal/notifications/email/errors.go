// Package email renders reminder digests and delivers them over SMTP.
package email

import "errors"

// ErrTransportUnavailable is returned when the mail server cannot be reached
// or refuses authentication. It aborts the whole run.
var ErrTransportUnavailable = errors.New("mail transport unavailable")
