// This file is to handle things such as metrics, health and topology
// introspection.

package webapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/couchbaselabs/cbrouting/cbbucket"
	"github.com/couchbaselabs/cbrouting/routing"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WebServerOptions struct {
	Logger        *zap.Logger
	LogLevel      *zap.AtomicLevel
	ListenAddress string
	Router        *routing.Router
}

type WebServer struct {
	logger        *zap.Logger
	logLevel      *zap.AtomicLevel
	listenAddress string
	router        *routing.Router
	httpServer    *http.Server
}

func newWebServer(opts WebServerOptions) *WebServer {
	return &WebServer{
		logger:        opts.Logger,
		logLevel:      opts.LogLevel,
		listenAddress: opts.ListenAddress,
		router:        opts.Router,
	}
}

func (w *WebServer) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, err := rw.Write([]byte("Welcome to the cbrouting internal webapi"))
	if err != nil {
		w.logger.Debug("failed to write generic root response", zap.Error(err))
	}
}

type topologyNodeJson struct {
	Hostname string `json:"hostname"`
	DataPort int    `json:"dataPort"`
}

type topologyJson struct {
	Bucket            string             `json:"bucket"`
	Revision          []uint64           `json:"revision"`
	NumPartitions     int                `json:"numPartitions"`
	NumReplicas       int                `json:"numReplicas"`
	Tainted           bool               `json:"tainted"`
	Ephemeral         bool               `json:"ephemeral"`
	HasFastForwardMap bool               `json:"hasFastForwardMap"`
	Nodes             []topologyNodeJson `json:"nodes"`
}

func (w *WebServer) handleTopology(rw http.ResponseWriter, r *http.Request) {
	config := w.router.Config()
	if config == nil {
		http.Error(rw, "no topology applied yet", http.StatusServiceUnavailable)
		return
	}

	nodes := make([]topologyNodeJson, 0, len(config.Nodes()))
	for _, node := range config.Nodes() {
		nodes = append(nodes, topologyNodeJson{
			Hostname: node.Hostname,
			DataPort: node.Services[cbbucket.ServiceData],
		})
	}

	rw.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(rw).Encode(topologyJson{
		Bucket:            config.Name(),
		Revision:          config.Revision(),
		NumPartitions:     config.NumPartitions(),
		NumReplicas:       config.NumReplicas(),
		Tainted:           config.Tainted(),
		Ephemeral:         config.Ephemeral(),
		HasFastForwardMap: config.HasFastForwardMap(),
		Nodes:             nodes,
	})
	if err != nil {
		w.logger.Debug("failed to write topology response", zap.Error(err))
	}
}

func (w *WebServer) ListenAndServe() error {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/topology", w.handleTopology)
	r.HandleFunc("/", w.handleRoot)

	w.httpServer = &http.Server{
		Handler:      r,
		Addr:         w.listenAddress,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return w.httpServer.ListenAndServe()
}

var globalWebLock sync.Mutex
var globalWebServer *WebServer = nil

func InitializeWebServer(opts WebServerOptions) {
	globalWebLock.Lock()
	if globalWebServer != nil {
		globalWebLock.Unlock()
		return
	}

	globalWebServer = newWebServer(opts)
	globalWebLock.Unlock()
	go func() {
		err := globalWebServer.ListenAndServe()
		if err != nil {
			opts.Logger.Error("Failed to listen and serve web server", zap.Error(err))
		}
	}()
}
