package main

import (
	"net/http"

	"github.com/sawpanic/pumpradar/internal/application"
	httpapi "github.com/sawpanic/pumpradar/internal/interfaces/http"
)

func newServer(addr string, watcher *application.Watcher, metrics *httpapi.MetricsRegistry, res *resources) *httpapi.Server {
	var stream http.Handler
	if res.hub != nil {
		stream = http.HandlerFunc(res.hub.ServeWS)
	}
	return httpapi.NewServer(httpapi.DefaultServerConfig(addr), watcher, metrics, stream)
}
