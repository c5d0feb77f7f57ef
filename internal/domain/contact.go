package domain

import "errors"

var ErrBadContactsFile = errors.New("contacts file is not valid CSV")

// Contact is an address-book entry an organizer can invite.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// ImportResult summarizes a contacts upload.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
