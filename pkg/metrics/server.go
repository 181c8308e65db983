package metrics

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Link is an API endpoint listed on the metrics landing page. Path is
// served by the API server, not by the metrics server.
type Link struct {
	Name string
	Path string
}

var landingPage = template.Must(template.New("landing").Parse(`<html><body>
<h1>Feed Search Metrics</h1>
<p><a href="/metrics">/metrics</a></p>
{{if .}}<h2>API</h2>
<ul>{{range .}}
<li><a href="{{.URL}}">{{.Name}}</a> <code>{{.Path}}</code></li>{{end}}
</ul>{{end}}
</body></html>`))

type landingLink struct {
	Name string
	Path string
	URL  string
}

// NewServeMux serves /metrics and a landing page at / linking it and every
// link, resolved against the API server on apiPort of the requested host.
// An apiPort of 0 leaves links relative.
func NewServeMux(apiPort int, links ...Link) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		base := ""
		if apiPort > 0 {
			host := r.Host
			if h, _, err := net.SplitHostPort(r.Host); err == nil {
				host = h
			}
			base = "http://" + net.JoinHostPort(host, strconv.Itoa(apiPort))
		}
		page := make([]landingLink, len(links))
		for i, l := range links {
			page[i] = landingLink{Name: l.Name, Path: l.Path, URL: base + l.Path}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := landingPage.Execute(w, page); err != nil {
			slog.Error("rendering metrics landing page", "error", err)
		}
	})
	return mux
}

func StartServer(port, apiPort int, links ...Link) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewServeMux(apiPort, links...),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
