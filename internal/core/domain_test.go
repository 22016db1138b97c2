package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-01-15", "2024-01-15", true},
		{"2024-01-15T10:30:00Z", "2024-01-15", true},
		{"", "", true},
		{"15/01/2024", "", false},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: ok=%v, err=%v", tc.in, tc.ok, err)
		}
		if tc.ok && d.String() != tc.want {
			t.Fatalf("%q: got %q, want %q", tc.in, d.String(), tc.want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	type rec struct {
		Bill Date `json:"billSubmissionDate"`
	}
	b, _ := json.Marshal(rec{})
	if string(b) != `{"billSubmissionDate":""}` {
		t.Fatalf("empty date encoded as %s", b)
	}
	b, _ = json.Marshal(rec{Bill: NewDate(2024, 2, 10)})
	if string(b) != `{"billSubmissionDate":"2024-02-10"}` {
		t.Fatalf("date encoded as %s", b)
	}

	var r rec
	for _, in := range []string{`{"billSubmissionDate":null}`, `{"billSubmissionDate":""}`, `{}`} {
		r = rec{Bill: NewDate(2000, 1, 1)}
		if err := json.Unmarshal([]byte(in), &r); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if in != `{}` && !r.Bill.IsEmpty() {
			t.Fatalf("%s: expected empty date, got %v", in, r.Bill)
		}
	}
	if err := json.Unmarshal([]byte(`{"billSubmissionDate":"nope"}`), &r); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("admin"); err != nil || r != RoleAdmin {
		t.Fatalf("admin: %v %v", r, err)
	}
	if r, err := ParseRole(" Viewer "); err != nil || r != RoleViewer {
		t.Fatalf("viewer: %v %v", r, err)
	}
	if _, err := ParseRole("root"); err != ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUserSessionStripsPassword(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	u := User{Username: "Admin", Password: "secret", Role: RoleAdmin}
	s := u.Session("sid", now, time.Hour)

	b, _ := json.Marshal(s)
	if strings.Contains(string(b), "secret") {
		t.Fatalf("session leaks password: %s", b)
	}
	if !s.IsAdmin() || s.Username != "Admin" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.Expired(now.Add(59*time.Minute)) || !s.Expired(now.Add(time.Hour)) {
		t.Fatalf("expiry boundary wrong for %+v", s)
	}
}

func TestSameUsername(t *testing.T) {
	if !SameUsername("Admin", "admin") || !SameUsername(" ADMIN", "admin ") {
		t.Fatalf("usernames must compare case-insensitively")
	}
	if SameUsername("admin", "admin2") {
		t.Fatalf("different usernames compared equal")
	}
	for _, pair := range [][2]string{{"kosmoς", "KOSMOΣ"}, {"kosmoς", "kosmoσ"}, {"ſam", "Sam"}} {
		if !SameUsername(pair[0], pair[1]) || UsernameKey(pair[0]) != UsernameKey(pair[1]) {
			t.Errorf("%q and %q must share a key", pair[0], pair[1])
		}
	}
}
