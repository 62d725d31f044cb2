package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/driftware/workspace-mcp/internal/errdefs"
)

// callbackResult carries the redirect parameters back to the flow. The
// state is validated by the provider, not here; the CSRF check is a hard
// invariant of the flow and belongs next to the state's generation.
type callbackResult struct {
	code  string
	state string
}

// callbackServer is a short-lived loopback HTTP listener that receives
// the OAuth2 authorization redirect. It is scoped to a single in-flight
// flow and must always be stopped, whatever the flow's outcome.
type callbackServer struct {
	listener net.Listener
	server   *http.Server
	results  chan callbackResult
	errs     chan error
}

// newCallbackServer binds 127.0.0.1 on the given port; port 0 picks an
// ephemeral one.
func newCallbackServer(port int) (*callbackServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind callback listener: %w", err)
	}

	cs := &callbackServer{
		listener: listener,
		results:  make(chan callbackResult, 1),
		errs:     make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", cs.handleCallback)
	cs.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := cs.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case cs.errs <- err:
			default:
			}
		}
	}()

	return cs, nil
}

// RedirectURI returns the exact URI registered with the provider.
func (cs *callbackServer) RedirectURI() string {
	return fmt.Sprintf("http://%s/callback", cs.listener.Addr().String())
}

// Port returns the bound port.
func (cs *callbackServer) Port() int {
	return cs.listener.Addr().(*net.TCPAddr).Port
}

func (cs *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		cs.deliver(callbackResult{}, &errdefs.AuthError{
			Code:    errdefs.CodeAccessDenied,
			Message: "authorization denied: " + errParam,
		})
		writeCallbackPage(w, http.StatusForbidden, "Authorization failed",
			"The authorization request was denied. You can close this window.")
		return
	}

	code := q.Get("code")
	if code == "" {
		cs.deliver(callbackResult{}, &errdefs.AuthError{
			Code:    errdefs.CodeAccessDenied,
			Message: "callback received no authorization code",
		})
		writeCallbackPage(w, http.StatusBadRequest, "Authorization failed",
			"No authorization code was received. You can close this window.")
		return
	}

	cs.deliver(callbackResult{code: code, state: q.Get("state")}, nil)
	writeCallbackPage(w, http.StatusOK, "Authorization complete",
		"You are signed in. You can close this window and return to the terminal.")
}

func (cs *callbackServer) deliver(res callbackResult, err error) {
	if err != nil {
		select {
		case cs.errs <- err:
		default:
		}
		return
	}
	select {
	case cs.results <- res:
	default:
	}
}

// Wait blocks for the redirect, the context, or the timeout.
func (cs *callbackServer) Wait(ctx context.Context, timeout time.Duration) (callbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-cs.results:
		return res, nil
	case err := <-cs.errs:
		return callbackResult{}, err
	case <-timer.C:
		return callbackResult{}, &errdefs.AuthError{
			Code:    errdefs.CodeFlowTimeout,
			Message: fmt.Sprintf("no authorization response within %s", timeout),
		}
	case <-ctx.Done():
		return callbackResult{}, ctx.Err()
	}
}

// Stop tears the listener down. Safe to call more than once.
func (cs *callbackServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = cs.server.Shutdown(ctx)
	_ = cs.listener.Close()
}

func writeCallbackPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h1>%s</h1><p>%s</p>
</body></html>`, title, title, body)
}
