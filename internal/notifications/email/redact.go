package email

import (
	"strings"
	"unicode/utf8"
)

// RedactEmail masks an address for logging, keeping the first character of
// the local part and the domain: "john@gmail.com" becomes "j***@gmail.com".
// Strings without "@" are masked entirely.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	r, _ := utf8.DecodeRuneInString(local)
	return string(r) + "***@" + domain
}

// RedactEmails applies RedactEmail to every address.
func RedactEmails(emails []string) []string {
	if len(emails) == 0 {
		return nil
	}
	out := make([]string, len(emails))
	for i, e := range emails {
		out[i] = RedactEmail(e)
	}
	return out
}
