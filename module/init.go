package module

import (
	"net/http"

	"github.com/gigapi/gigapi/v2/modules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/querier"
	"github.com/gigapi/gigapi-chat/session"
)

var orchestrator *session.Orchestrator

func WithNoError(hndl func(w http.ResponseWriter, r *http.Request),
) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		hndl(w, r)
		return nil
	}
}

// Init mounts the chat endpoints on a gigapi host
func Init(api modules.Api) {
	if config.Config == nil {
		config.InitConfig("")
	}
	core.SetLogLevel(config.Config.LogLevel)
	orchestrator = session.New(config.Config, afero.NewOsFs(), prometheus.DefaultRegisterer)
	server := querier.NewServer(orchestrator, prometheus.DefaultGatherer)
	for _, route := range server.Routes() {
		api.RegisterRoute(&modules.Route{
			Path:    route.Path,
			Methods: route.Methods,
			Handler: WithNoError(route.Handler),
		})
	}
}

func Close() {
	if orchestrator == nil {
		return
	}
	orchestrator.Close()
}
