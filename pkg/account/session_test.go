package account

import (
	"errors"
	"net/http"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	u := User{ID: "u-1", Email: "a@b.c", Name: "김, 철수", Unmetered: true}
	v := EncodeSession(u)

	// The value must survive being set as a cookie unchanged.
	c := &http.Cookie{Name: SessionCookie, Value: v}
	if got := c.String(); got != SessionCookie+"="+v {
		t.Fatalf("cookie = %q", got)
	}

	got, err := DecodeSession(v)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Email != u.Email || got.Name != u.Name || got.Unmetered {
		t.Errorf("decoded = %+v", got)
	}
}

func TestDecodeSessionErrors(t *testing.T) {
	for _, v := range []string{"", "not-json", "%7B%7D", "%zz"} {
		if _, err := DecodeSession(v); !errors.Is(err, ErrBadSession) {
			t.Errorf("DecodeSession(%q) = %v", v, err)
		}
	}
}
