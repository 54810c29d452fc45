package core

import (
	"testing"
)

func TestParseCookiesBasic(t *testing.T) {
	got := ParseCookies(`name=value; name2="quoted value"; sessionId=abc-123`)
	if got["name"] != "value" {
		t.Fatalf("name = %q", got["name"])
	}
	if got["name2"] != "quoted value" {
		t.Fatalf("name2 = %q, want unquoted", got["name2"])
	}
	if got["sessionId"] != "abc-123" {
		t.Fatalf("sessionId = %q", got["sessionId"])
	}
}

func TestParseCookiesDropsEmptyName(t *testing.T) {
	got := ParseCookies(`=orphan; real=1`)
	if _, ok := got[""]; ok {
		t.Fatal("empty-name cookie entry should be dropped")
	}
	if got["real"] != "1" {
		t.Fatalf("real = %q", got["real"])
	}
}

func TestSetCookieBuildOrderAndSameSiteNoneForcesSecure(t *testing.T) {
	c := SetCookie{
		Name:     "sessionId",
		Value:    "abc",
		Path:     "/",
		SameSite: SameSiteNone,
	}
	got := c.Build()
	want := "sessionId=abc; Path=/; SameSite=None; Secure"
	if got != want {
		t.Fatalf("Build() = %q, want %q", got, want)
	}
}

func TestSetCookieBuildMissingNameOrValueYieldsEmpty(t *testing.T) {
	if got := (SetCookie{Value: "v"}).Build(); got != "" {
		t.Fatalf("missing name: Build() = %q, want empty", got)
	}
	if got := (SetCookie{Name: "n"}).Build(); got != "" {
		t.Fatalf("missing value: Build() = %q, want empty", got)
	}
}

func TestSetCookieBuildMaxAge(t *testing.T) {
	c := SetCookie{Name: "a", Value: "b", HasMaxAge: true, MaxAge: 3600}
	got := c.Build()
	want := "a=b; Max-Age=3600"
	if got != want {
		t.Fatalf("Build() = %q, want %q", got, want)
	}
}
