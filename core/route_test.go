package core

import (
	"testing"

	"github.com/yourusername/bsrvcore/internal/httpwire"
)

func noopHandler(*Task) error { return nil }

func TestRouteBasicGet(t *testing.T) {
	rt := NewRouteTable()
	if err := rt.AddRoute(httpwire.MethodGet, "/ping", noopHandler); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	res := rt.Route(httpwire.MethodGet, "/ping")
	if res.Handler == nil {
		t.Fatal("expected a matched handler for /ping")
	}
	if res.Location != "/ping" {
		t.Fatalf("Location = %q, want /ping", res.Location)
	}
}

func TestRouteLiteralWinsOverParameter(t *testing.T) {
	rt := NewRouteTable()
	rt.AddRoute(httpwire.MethodGet, "/users/{id}", noopHandler)
	var hitLiteral bool
	rt.AddRoute(httpwire.MethodGet, "/users/me", func(*Task) error {
		hitLiteral = true
		return nil
	})

	res := rt.Route(httpwire.MethodGet, "/users/me")
	if err := res.Handler(nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !hitLiteral {
		t.Fatal("literal child should win over parameter child")
	}
	if len(res.Params) != 0 {
		t.Fatalf("literal match captured params: %v", res.Params)
	}
}

func TestRouteParameterCapture(t *testing.T) {
	rt := NewRouteTable()
	rt.AddRoute(httpwire.MethodGet, "/users/{id}", noopHandler)

	res := rt.Route(httpwire.MethodGet, "/users/123")
	if res.Handler == nil {
		t.Fatal("expected a match for /users/123")
	}
	if len(res.Params) != 1 || res.Params[0] != "123" {
		t.Fatalf("Params = %v, want [123]", res.Params)
	}
	if res.Location != "/users/123" {
		t.Fatalf("Location = %q, want /users/123", res.Location)
	}
}

func TestRouteExclusiveOverride(t *testing.T) {
	rt := NewRouteTable()
	var exclusiveHit, paramHit bool
	rt.AddExclusiveRoute(httpwire.MethodGet, "/static", func(*Task) error {
		exclusiveHit = true
		return nil
	})
	rt.AddRoute(httpwire.MethodGet, "/static/{file}", func(*Task) error {
		paramHit = true
		return nil
	})

	res := rt.Route(httpwire.MethodGet, "/static/abc")
	if res.Handler == nil {
		t.Fatal("expected a match for /static/abc")
	}
	if err := res.Handler(nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !exclusiveHit || paramHit {
		t.Fatal("exclusive override should dispatch to the exclusive handler")
	}
	if res.Location != "/static" {
		t.Fatalf("Location = %q, want /static", res.Location)
	}
}

func TestRouteNoMatchFallsBackToDefault(t *testing.T) {
	rt := NewRouteTable()
	var defaultHit bool
	rt.SetDefaultHandler(func(*Task) error {
		defaultHit = true
		return nil
	})
	rt.AddRoute(httpwire.MethodGet, "/known", noopHandler)

	res := rt.Route(httpwire.MethodGet, "/unknown")
	if res.Handler == nil {
		t.Fatal("expected the default handler for an unmatched route")
	}
	res.Handler(nil)
	if !defaultHit {
		t.Fatal("expected the default handler to run")
	}
}

func TestRouteResolvedLimitsFallBackToDefault(t *testing.T) {
	rt := NewRouteTable()
	rt.SetDefaultLimits(Limits{MaxBody: 1024})
	rt.AddRouteWithLimits(httpwire.MethodGet, "/big", noopHandler, Limits{MaxBody: 4096})
	rt.AddRoute(httpwire.MethodGet, "/small", noopHandler)

	big := rt.Route(httpwire.MethodGet, "/big")
	if big.Limits.MaxBody != 4096 {
		t.Fatalf("MaxBody = %d, want 4096 (route override)", big.Limits.MaxBody)
	}
	small := rt.Route(httpwire.MethodGet, "/small")
	if small.Limits.MaxBody != 1024 {
		t.Fatalf("MaxBody = %d, want 1024 (table default)", small.Limits.MaxBody)
	}
}

func TestAddRouteRejectsInvalidTargets(t *testing.T) {
	rt := NewRouteTable()
	cases := []string{
		"no-leading-slash",
		"/a/{unterminated",
		"/a/../b",
		"/a/{nested{x}}",
	}
	for _, c := range cases {
		if err := rt.AddRoute(httpwire.MethodGet, c, noopHandler); err == nil {
			t.Errorf("AddRoute(%q) succeeded, want ErrInvalidRoute", c)
		}
	}
}

func TestAddRouteRejectsOutOfRangeMethod(t *testing.T) {
	rt := NewRouteTable()
	if err := rt.AddRoute(httpwire.Method(httpwire.NumMethods+1), "/x", noopHandler); err == nil {
		t.Fatal("expected ErrInvalidRoute for an out-of-range method")
	}
}

func TestAspectOrdering(t *testing.T) {
	rt := NewRouteTable()
	var order []string
	track := func(name string) Aspect {
		return Aspect{
			Pre:  func(*Task) error { order = append(order, "pre"+name); return nil },
			Post: func(*Task) error { order = append(order, "post"+name); return nil },
		}
	}
	rt.AddGlobalAspect(track("G"))
	rt.AddMethodAspect(httpwire.MethodGet, track("M"))
	rt.AddRoute(httpwire.MethodGet, "/order", func(*Task) error {
		order = append(order, "handler")
		return nil
	}, track("R"))

	res := rt.Route(httpwire.MethodGet, "/order")
	for _, a := range res.Aspects {
		a.Pre(nil)
	}
	res.Handler(nil)
	for i := len(res.Aspects) - 1; i >= 0; i-- {
		res.Aspects[i].Post(nil)
	}

	want := []string{"preG", "preM", "preR", "handler", "postR", "postM", "postG"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
