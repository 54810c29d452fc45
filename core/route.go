package core

import (
	"strings"
	"time"

	"github.com/yourusername/bsrvcore/internal/httpwire"
)

// Limits bounds a route's resource usage: how large a request body it will
// accept, and how long the connection may take to read or write while
// serving it. A zero field means "use the RouteTable default".
type Limits struct {
	MaxBody     int64
	ReadExpiry  time.Duration
	WriteExpiry time.Duration
}

// RouteLayer is one node in a method's route trie, corresponding to one
// path segment.
type RouteLayer struct {
	children   map[string]*RouteLayer
	paramChild *RouteLayer

	handler Handler
	aspects []Aspect
	limits  Limits

	// ignoreDefaultRoute suppresses further descent into the parameter
	// child once this layer is reached; the layer's own handler is used
	// regardless of any remaining path segments.
	ignoreDefaultRoute bool
}

func newRouteLayer() *RouteLayer {
	return &RouteLayer{children: make(map[string]*RouteLayer)}
}

// RouteResult is the outcome of matching a (method, path) pair against a
// RouteTable: the matched location, captured parameters in traversal order,
// the flattened aspect chain, the handler to invoke, and the resolved
// per-route limits.
type RouteResult struct {
	Location string
	Params   []string
	Aspects  []Aspect
	Handler  Handler
	Limits   Limits
}

// RouteTable holds one route trie per HTTP method plus the global and
// per-method aspect lists and the fallback handler/limits. It is mutable
// only before the owning Server starts; Server enforces that boundary.
type RouteTable struct {
	roots [httpwire.NumMethods]*RouteLayer

	globalAspects []Aspect
	methodAspects [httpwire.NumMethods][]Aspect

	defaultHandler Handler
	defaultLimits  Limits
}

// NewRouteTable returns an empty RouteTable.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// AddGlobalAspect registers an aspect that runs around every request on
// every method, outermost in the pre/post chain.
func (rt *RouteTable) AddGlobalAspect(a Aspect) {
	rt.globalAspects = append(rt.globalAspects, a)
}

// AddMethodAspect registers an aspect that runs around every request for a
// given method, between the global aspects and the route-specific ones.
func (rt *RouteTable) AddMethodAspect(method httpwire.Method, a Aspect) {
	if int(method) < 0 || int(method) >= httpwire.NumMethods {
		return
	}
	rt.methodAspects[method] = append(rt.methodAspects[method], a)
}

// SetDefaultHandler installs the handler used when no route matches.
func (rt *RouteTable) SetDefaultHandler(h Handler) {
	rt.defaultHandler = h
}

// SetDefaultLimits installs the limits used whenever a route leaves a
// field unset (zero).
func (rt *RouteTable) SetDefaultLimits(l Limits) {
	rt.defaultLimits = l
}

// AddRoute registers h at target for method, with no per-route limit
// overrides.
func (rt *RouteTable) AddRoute(method httpwire.Method, target string, h Handler, aspects ...Aspect) error {
	return rt.addRoute(method, target, h, Limits{}, aspects, false)
}

// AddRouteWithLimits registers h at target with per-route limit overrides.
func (rt *RouteTable) AddRouteWithLimits(method httpwire.Method, target string, h Handler, limits Limits, aspects ...Aspect) error {
	return rt.addRoute(method, target, h, limits, aspects, false)
}

// AddExclusiveRoute registers h at target and marks the terminal layer to
// suppress further descent into parameter children: any request whose path
// has this target as a prefix is dispatched here.
func (rt *RouteTable) AddExclusiveRoute(method httpwire.Method, target string, h Handler, aspects ...Aspect) error {
	return rt.addRoute(method, target, h, Limits{}, aspects, true)
}

func (rt *RouteTable) addRoute(method httpwire.Method, target string, h Handler, limits Limits, aspects []Aspect, exclusive bool) error {
	if int(method) < 0 || int(method) >= httpwire.NumMethods {
		return ErrInvalidRoute
	}
	segs, err := validateAndSplit(target)
	if err != nil {
		return err
	}

	root := rt.roots[method]
	if root == nil {
		root = newRouteLayer()
		rt.roots[method] = root
	}

	layer := root
	for _, seg := range segs {
		if seg.isParam {
			if layer.paramChild == nil {
				layer.paramChild = newRouteLayer()
			}
			layer = layer.paramChild
			continue
		}
		child, ok := layer.children[seg.literal]
		if !ok {
			child = newRouteLayer()
			layer.children[seg.literal] = child
		}
		layer = child
	}

	layer.handler = h
	layer.aspects = aspects
	layer.limits = limits
	if exclusive {
		layer.ignoreDefaultRoute = true
	}
	return nil
}

// Route matches (method, path) against the trie and returns the resulting
// RouteResult. A malformed path, an out-of-range method, or no matching
// handler all fall back to the table's default handler and limits; Route
// never returns an error.
func (rt *RouteTable) Route(method httpwire.Method, path string) RouteResult {
	if int(method) < 0 || int(method) >= httpwire.NumMethods || len(path) == 0 || path[0] != '/' {
		return rt.defaultResult()
	}
	root := rt.roots[method]
	if root == nil {
		return rt.defaultResult()
	}

	layer := root
	var params []string
	var loc strings.Builder

	rest := path[1:]
	segs := strings.Split(rest, "/")
	for _, seg := range segs {
		if seg == "" {
			loc.WriteByte('/')
			continue
		}
		if child, ok := layer.children[seg]; ok {
			layer = child
			loc.WriteByte('/')
			loc.WriteString(seg)
			continue
		}
		if layer.ignoreDefaultRoute {
			break
		}
		if layer.paramChild != nil {
			layer = layer.paramChild
			params = append(params, seg)
			loc.WriteByte('/')
			loc.WriteString(seg)
			continue
		}
		return rt.defaultResult()
	}

	if layer.handler == nil {
		return rt.defaultResult()
	}
	return rt.buildResult(method, layer, loc.String(), params)
}

func (rt *RouteTable) buildResult(method httpwire.Method, layer *RouteLayer, location string, params []string) RouteResult {
	aspects := make([]Aspect, 0, len(rt.globalAspects)+len(rt.methodAspects[method])+len(layer.aspects))
	aspects = append(aspects, rt.globalAspects...)
	aspects = append(aspects, rt.methodAspects[method]...)
	aspects = append(aspects, layer.aspects...)

	return RouteResult{
		Location: location,
		Params:   params,
		Aspects:  aspects,
		Handler:  layer.handler,
		Limits:   rt.resolveLimits(layer.limits),
	}
}

func (rt *RouteTable) resolveLimits(l Limits) Limits {
	out := rt.defaultLimits
	if l.MaxBody != 0 {
		out.MaxBody = l.MaxBody
	}
	if l.ReadExpiry != 0 {
		out.ReadExpiry = l.ReadExpiry
	}
	if l.WriteExpiry != 0 {
		out.WriteExpiry = l.WriteExpiry
	}
	return out
}

func (rt *RouteTable) defaultResult() RouteResult {
	return RouteResult{
		Handler: rt.defaultHandler,
		Limits:  rt.defaultLimits,
	}
}

type pathSegment struct {
	literal string
	isParam bool
}

// validateAndSplit enforces the registration-time path grammar: leading
// '/', at most 2048 characters, each segment either a literal made of
// URL-safe characters or a single non-nesting "{name}" capture, and no
// literal segment equal to ".." once parameter segments are set aside.
func validateAndSplit(target string) ([]pathSegment, error) {
	if len(target) == 0 || target[0] != '/' {
		return nil, ErrInvalidRoute
	}
	if len(target) > 2048 {
		return nil, ErrInvalidRoute
	}

	trimmed := strings.Trim(target, "/")
	if trimmed == "" {
		return nil, nil
	}

	raw := strings.Split(trimmed, "/")
	segs := make([]pathSegment, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			continue
		}
		if strings.ContainsAny(r, "{}") {
			if strings.Count(r, "{") != 1 || strings.Count(r, "}") != 1 ||
				r[0] != '{' || r[len(r)-1] != '}' {
				return nil, ErrInvalidRoute
			}
			segs = append(segs, pathSegment{literal: r[1 : len(r)-1], isParam: true})
			continue
		}
		if !validLiteralSegment(r) {
			return nil, ErrInvalidRoute
		}
		if r == ".." {
			return nil, ErrInvalidRoute
		}
		segs = append(segs, pathSegment{literal: r})
	}
	return segs, nil
}

func validLiteralSegment(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("-._~%:@!$&'()*+,;=", c) >= 0:
		default:
			return false
		}
	}
	return true
}
