package identity

import "testing"

func TestSearchPattern(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"   ":         "",
		"Ada":         "%ada%",
		" 50%_off\\ ": `%50\%\_off\\%`,
	}
	for in, want := range cases {
		if got := searchPattern(in); got != want {
			t.Fatalf("searchPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewStore_DefaultSchema(t *testing.T) {
	if s := NewStore(nil, " "); s.usersTable() != "public.users" {
		t.Fatalf("got %q", s.usersTable())
	}
	if s := NewStore(nil, "app"); s.usersTable() != "app.users" {
		t.Fatalf("got %q", s.usersTable())
	}
}
