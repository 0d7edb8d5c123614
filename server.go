package pinsrv

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
)

const maxFormBytes = 16 * 1024
const httpTimeoutsMs = 3000

// Server maps the plain-text HTTP surface onto registry operations.
// Every response is status 200; success and failure travel in the
// body ("OK", "invalid GPIO", ...), matching what scripted callers
// expect.
type Server struct {
	registry *Registry
	logger   *log.Logger
	server   *http.Server
}

func NewServer(registry *Registry, port uint16) *Server {
	srv := &Server{
		registry: registry,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "http",
			Level:  log.GetLevel(),
		}),
	}

	handler := httprouter.New()
	handler.GET("/get/:index", srv.handleGet)
	handler.POST("/set", srv.handleSet)
	handler.GET("/name/get/:name", srv.handleGetByName)
	handler.POST("/name/set", srv.handleSetByName)
	handler.GET("/gpio", srv.handleDump)

	httpTimeout := httpTimeoutsMs * time.Millisecond

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.logRequests(handler),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	return srv
}

func (srv *Server) ListenAndServe() error {
	return srv.server.ListenAndServe()
}

func (srv *Server) Close() error {
	return srv.server.Close()
}

// Handler exposes the route tree, mainly for tests.
func (srv *Server) Handler() http.Handler {
	return srv.server.Handler
}

func (srv *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (srv *Server) handleGet(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	index, err := strconv.Atoi(p.ByName("index"))
	if err != nil {
		fmt.Fprint(w, "invalid GPIO")
		return
	}

	value, found := srv.registry.Value(index)
	if !found {
		fmt.Fprint(w, "invalid GPIO")
		return
	}

	fmt.Fprint(w, value)
}

func (srv *Server) handleSet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		fmt.Fprint(w, "invalid GPIO pin")
		return
	}

	pin, err := strconv.Atoi(r.PostFormValue("pin"))
	if err != nil {
		fmt.Fprint(w, "invalid GPIO pin")
		return
	}

	state, ok := parseState(r.PostFormValue("state"))
	if !ok {
		fmt.Fprint(w, "invalid state")
		return
	}

	if srv.registry.SetValue(pin, state) {
		fmt.Fprint(w, "OK")
	} else {
		fmt.Fprint(w, "invalid GPIO pin")
	}
}

func (srv *Server) handleGetByName(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	value, found := srv.registry.ValueByName(p.ByName("name"))
	if !found {
		fmt.Fprint(w, "invalid GPIO name")
		return
	}

	fmt.Fprint(w, value)
}

func (srv *Server) handleSetByName(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		fmt.Fprint(w, "invalid GPIO name")
		return
	}

	name := r.PostFormValue("name")
	state, ok := parseState(r.PostFormValue("state"))
	if !ok {
		fmt.Fprint(w, "invalid state")
		return
	}

	if srv.registry.SetByName(name, state) {
		fmt.Fprint(w, "OK")
	} else {
		fmt.Fprint(w, "invalid GPIO name")
	}
}

func (srv *Server) handleDump(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	srv.registry.Describe(w)
}

// parseState accepts only the logical levels 0 and 1. Anything else
// never reaches the hardware layer.
func parseState(raw string) (state int, ok bool) {
	state, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if state != 0 && state != 1 {
		return 0, false
	}
	return state, true
}
