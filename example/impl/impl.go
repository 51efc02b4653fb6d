// Command impl is an example implementation module, built as a Go plugin:
//
//	go build -buildmode=plugin \
//	  -o modules/tailrecursion/clojure_adapter_servlet/impl.so ./example/impl
//
// servlet-adapter started with the default configuration picks it up from
// ./modules.
package main

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tailrecursion/servlet-adapter/servlet"
)

var (
	ctx  servlet.Context
	name string
	hits atomic.Int64
)

func ContextInitialized(ev *servlet.ContextEvent) error {
	ctx = ev.ServletContext()
	ctx.SetAttribute("started", time.Now())
	ctx.Log("context initialized")
	return nil
}

func ContextDestroyed(ev *servlet.ContextEvent) error {
	ev.ServletContext().Log("context destroyed")
	return nil
}

func Init(cfg servlet.Config) error {
	name = cfg.ServletName()
	if v := cfg.InitParameter("fail"); v != "" {
		return &servlet.UnavailableError{Message: "init refused: " + v}
	}
	cfg.ServletContext().Log("starting servlet " + name)
	return nil
}

func Service(req servlet.Request, res servlet.Response) error {
	n := hits.Add(1)
	switch req.URL().Query().Get("mode") {
	case "sleep":
		return sleep(req, res)
	case "fail":
		return servlet.Errorf("failure requested on hit %d", n)
	}

	res.Header().Set("Content-Type", "text/plain; charset=utf-8")
	res.WriteString("Hello from a servlet.\n")
	fmt.Fprintf(res, "servlet =>  %s\n", name)
	fmt.Fprintf(res, "method =>   %s\n", req.Method())
	fmt.Fprintf(res, "path =>     %s\n", req.URL().Path)
	fmt.Fprintf(res, "hits =>     %d\n", n)
	if ctx != nil {
		fmt.Fprintf(res, "context =>  %s\n", ctx.ContextPath())
	}
	return nil
}

// sleep streams a countdown, flushing after every line
func sleep(req servlet.Request, res servlet.Response) error {
	secs := 3
	if v, err := strconv.Atoi(req.URL().Query().Get("secs")); err == nil && v >= 0 {
		secs = v
	}
	res.Header().Set("X-Content-Type-Options", "nosniff")
	fmt.Fprintf(res, "Sleeping for %d seconds...\n", secs)
	for i := secs; i > 0; i-- {
		fmt.Fprintf(res, "%d...\n", i)
		res.Flush()
		select {
		case <-req.Context().Done():
			return req.Context().Err()
		case <-time.After(time.Second):
		}
	}
	res.WriteString("I'm awake! End response.\n")
	return nil
}

func Destroy() error {
	if ctx != nil {
		ctx.Log("stopping servlet " + name)
	}
	return nil
}

func main() {}
