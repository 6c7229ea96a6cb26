package transport

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/notifico-tech/notifico/pkg/engine"
)

// SharedHTTPClient is the client the HTTP-based transports use. Connection
// pooling is shared so a burst of sends does not exhaust sockets.
var SharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	},
}

// CheckResponse classifies a non-2xx API response: server-side failures are
// transient (the task may be retried), client-side ones are permanent. The
// body is read for the error message and always drained so the connection
// can be reused.
func CheckResponse(resp *http.Response) error {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	if resp.StatusCode >= 500 {
		return engine.Transient(err)
	}
	return err
}
