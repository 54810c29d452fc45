// Command example runs a small RESTful demo server exercising the route
// table, aspects, parameter capture, and the session map.
//
// Test with:
//
//	curl http://localhost:2025/hello/get
//	curl -X POST --data "Hello HTTP server." http://localhost:2025/hello/post
//	curl http://localhost:2025/users/42
//	curl -i http://localhost:2025/session
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourusername/bsrvcore/core"
	"github.com/yourusername/bsrvcore/internal/httpwire"
)

func main() {
	cfg := core.DefaultConfig()
	cfg.Logger = core.NewStdLogger()
	server := core.NewServer(cfg)

	server.
		Route(httpwire.MethodGet, "/hello/get", func(t *core.Task) error {
			t.SetHeader(httpwire.HeaderContentType, "text/html")
			t.SetBody([]byte("<!DOCTYPE html><title>Hello World in GET method.</title>"))
			return nil
		}).
		Route(httpwire.MethodPost, "/hello/post", func(t *core.Task) error {
			body := t.Request().Body
			t.SetHeader(httpwire.HeaderContentType, "text/html")
			t.SetBody([]byte("<!DOCTYPE html>\n<html>\n<head><title>Hello World</title></head>\n"))
			t.AppendBody([]byte(fmt.Sprintf("<body>You request body is: %s</body>\n", body)))
			t.AppendBody([]byte("</html>"))
			return nil
		}).
		Route(httpwire.MethodGet, "/users/{id}", func(t *core.Task) error {
			params := t.Params()
			id := ""
			if len(params) > 0 {
				id = params[0]
			}
			return t.JSON(200, map[string]string{"id": id, "location": t.Location()})
		}).
		Route(httpwire.MethodGet, "/session", func(t *core.Task) error {
			id := t.SessionID()
			t.SetHeader(httpwire.HeaderContentType, "text/plain")
			t.SetBody([]byte("session id: " + id))
			return nil
		}).
		GlobalAspect(core.AccessLog(server)).
		Listen("0.0.0.0:2025")

	if !server.Start(4) {
		log.Fatal("server failed to start")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	server.Stop()
}
