package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("secret")
	user := uuid.New()
	tok, err := v.IssueToken(user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Verify(tok)
	if err != nil || got != user {
		t.Fatalf("user=%s err=%v want=%s", got, err, user)
	}

	if _, err := NewVerifier("other").Verify(tok); err != ErrInvalidToken {
		t.Fatalf("wrong secret err=%v", err)
	}
	expired, _ := v.IssueToken(user, -time.Minute)
	if _, err := v.Verify(expired); err != ErrInvalidToken {
		t.Fatalf("expired err=%v", err)
	}
	if _, err := v.Verify("not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("garbage err=%v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
		{"Bearer a b", "", false},
	}
	for _, c := range cases {
		tok, ok := BearerToken(c.header)
		if tok != c.token || ok != c.ok {
			t.Fatalf("BearerToken(%q)=%q,%v want=%q,%v", c.header, tok, ok, c.token, c.ok)
		}
	}
}

func TestContextUserID(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Fatalf("empty context should carry no user")
	}
	if _, ok := UserID(WithUserID(context.Background(), uuid.Nil)); ok {
		t.Fatalf("nil user should not count")
	}
	id := uuid.New()
	got, ok := UserID(WithUserID(context.Background(), id))
	if !ok || got != id {
		t.Fatalf("user=%s ok=%v", got, ok)
	}
}
