package smtp

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-smtp"
)

// errInvalidCredentials is the reply for an AUTH PLAIN payload that does not
// decode to the required authzid NUL username NUL password form.
var errInvalidCredentials = &smtp.SMTPError{
	Code:         535,
	EnhancedCode: smtp.EnhancedCode{5, 7, 8},
	Message:      "Authentication credentials invalid",
}

// plainServer is a SASL PLAIN server that hands parsed credentials to a
// callback. It replaces the stock go-sasl implementation so malformed
// payloads and empty credentials get the 535 5.7.8 reply instead of a
// generic SASL failure.
type plainServer struct {
	authenticate func(username, password string) error
	done         bool
}

// Next implements the sasl.Server interface. PLAIN is a single-step
// mechanism; the empty challenge asks the client for its initial response
// when it was not sent with the AUTH command.
func (s *plainServer) Next(response []byte) ([]byte, bool, error) {
	if s.done {
		return nil, false, fmt.Errorf("unexpected client response")
	}
	if response == nil {
		return []byte{}, false, nil
	}
	s.done = true

	parts := bytes.Split(response, []byte{0})
	if len(parts) != 3 {
		return nil, false, errInvalidCredentials
	}
	username := string(parts[1])
	password := string(parts[2])
	if username == "" || password == "" {
		return nil, false, errInvalidCredentials
	}

	return nil, true, s.authenticate(username, password)
}
