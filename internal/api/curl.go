package api

import (
	"fmt"
	"io"
	"net/http"
)

// WriteCurlHeader prints the script header the curl echo lines rely on.
func WriteCurlHeader(w io.Writer, host string, port int) error {
	_, err := fmt.Fprintf(w, "#!/bin/bash\nhost=%s\nport=%d\n", host, port)
	return err
}

// curlMiddleware echoes each request as a replayable curl command.
func (s *Server) curlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.curlMu.Lock()
		_, _ = fmt.Fprintf(s.cfg.Curl, "curl http://$host:$port%s\n", r.URL.EscapedPath())
		s.curlMu.Unlock()
		next.ServeHTTP(w, r)
	})
}
