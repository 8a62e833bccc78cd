// Package mailsource abstracts the stateful mail-retrieval protocol
// behind an explicit session handle. The coordinator receives a
// Session instead of sharing implicit connection state, which keeps
// test doubles trivial and allows concurrent account sessions later.
package mailsource

import (
	"errors"
	"fmt"
)

// AuthError indicates that login failed for an account. Connection and
// authentication failures are fatal for the whole account's run.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Config holds the connection settings for one account's mail source.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Session is one live, synchronous connection to a mail source. All
// operations act on the folder selected last; every call blocks until
// the server answers.
type Session interface {
	// SelectReadOnly opens a folder without marking anything as read.
	SelectReadOnly(folder string) error

	// UIDsSince returns the UIDs of messages in the selected folder
	// with UID >= start, in ascending order. An empty result means the
	// folder has nothing new.
	UIDsSince(start uint32) ([]uint32, error)

	// FetchRaw returns the full raw payload of one message. A nil or
	// empty result is a fetch failure, not an empty message.
	FetchRaw(uid uint32) ([]byte, error)

	// Logout ends the session.
	Logout() error
}

// Dialer opens sessions; the IMAP implementation is the production
// dialer, tests substitute their own.
type Dialer func(cfg Config) (Session, error)
