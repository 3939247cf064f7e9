package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// SessionCookie is the name of the cookie carrying the signed-in user.
const SessionCookie = "session"

// ErrBadSession is returned for session values that do not decode to a
// user with an id.
var ErrBadSession = errors.New("account: bad session")

// EncodeSession renders u as a cookie value: URL-escaped JSON of id, email
// and name.
func EncodeSession(u User) string {
	b, _ := json.Marshal(struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}{u.ID, u.Email, u.Name})
	return url.PathEscape(string(b))
}

// DecodeSession parses a cookie value produced by EncodeSession or by a
// browser that stored the raw JSON.
func DecodeSession(v string) (User, error) {
	raw, err := url.PathUnescape(v)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrBadSession, err)
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrBadSession, err)
	}
	if u.ID == "" {
		return User{}, fmt.Errorf("%w: missing id", ErrBadSession)
	}
	return User{ID: u.ID, Email: u.Email, Name: u.Name}, nil
}
