// mcp-stub — заглушка MCP-сервиса для локальной разработки и демо.
// Один бинарь изображает любой бэкенд: имя сервиса задается через SERVICE_NAME,
// от него зависит набор поддерживаемых команд и канонические ответы.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type executeRequest struct {
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters"`
}

type executeResponse struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type stub struct {
	service  string
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func main() {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "unknown-mcp"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	reg := prometheus.NewRegistry()
	s := &stub{
		service: service,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_requests_total",
			Help: "Total requests",
		}, []string{"service", "endpoint"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "mcp_request_duration_seconds",
			Help: "Request latency",
		}, []string{"service", "endpoint"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": service, "status": "operational"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": service, "status": "healthy"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Post("/execute", s.execute)

	log.Printf("%s stub started on :%s", service, port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func (s *stub) execute(w http.ResponseWriter, r *http.Request) {
	s.requests.WithLabelValues(s.service, "execute").Inc()
	start := time.Now()
	defer func() {
		s.latency.WithLabelValues(s.service, "execute").Observe(time.Since(start).Seconds())
	}()

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, executeResponse{Success: false, Error: "invalid request body"})
		return
	}

	result, err := s.handle(req.Command, req.Parameters)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, executeResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Success: true, Result: result})
}

// handle имитирует работу бэкенда: по лидирующему токену команды
// возвращает канонический ответ соответствующего сервиса.
func (s *stub) handle(command string, params map[string]interface{}) (interface{}, error) {
	verb := command
	if i := strings.IndexAny(command, " -._/"); i > 0 && command != "pr/create" {
		verb = command[:i]
	}

	switch s.service {
	case "k8s-mcp":
		switch verb {
		case "scale":
			return map[string]interface{}{
				"message": fmt.Sprintf("Scaled deployment %v to %v replicas", params["deployment"], params["replicas"]),
			}, nil
		case "get":
			return map[string]interface{}{
				"resources": []map[string]string{{"name": "web-app", "type": "deployment", "status": "running"}},
			}, nil
		}
	case "deploy-mcp":
		switch verb {
		case "deploy":
			return map[string]string{"status": "deployed", "deployment_id": "deploy-123"}, nil
		case "rollback":
			return map[string]string{"status": "rolled_back", "version": "v1.2.3"}, nil
		}
	case "cloud-mcp":
		switch verb {
		case "cost":
			return map[string]interface{}{"monthly_cost": 2450.75, "currency": "USD"}, nil
		case "usage":
			return map[string]interface{}{"instances": 12, "storage_gb": 500, "bandwidth_gb": 1000}, nil
		}
	case "obs-mcp":
		switch verb {
		case "query":
			return map[string]interface{}{
				"metrics": []map[string]interface{}{
					{"name": "cpu_usage", "value": 75.2},
					{"name": "memory_usage", "value": 68.5},
				},
			}, nil
		case "alerts":
			return map[string]interface{}{
				"alerts": []map[string]string{{"severity": "warning", "message": "High CPU usage"}},
			}, nil
		}
	case "kb-mcp":
		switch verb {
		case "search":
			return map[string]interface{}{
				"results": []map[string]string{{"title": "Deployment Guide", "content": "How to deploy..."}},
			}, nil
		case "generate":
			return map[string]string{"response": "Based on the context, here's what you should do..."}, nil
		}
	case "slo-mcp":
		if verb == "check" {
			return map[string]interface{}{"slo_met": true, "availability": 99.9, "latency_p95": 150}, nil
		}
	case "git-mcp":
		switch command {
		case "pr/create":
			return map[string]string{"pr_url": "https://github.com/org/repo/pull/123"}, nil
		case "commit":
			return map[string]interface{}{"commit_hash": "abc123", "message": params["message"]}, nil
		}
	case "tf-migrator":
		switch verb {
		case "generate":
			return map[string]string{
				"terraform_code": "resource \"aws_instance\" \"web\" {\n  ami           = \"ami-12345678\"\n  instance_type = \"t3.micro\"\n}\n",
			}, nil
		case "import":
			return map[string]interface{}{"imported_resources": 5, "state_file": "terraform.tfstate"}, nil
		}
	default:
		return nil, fmt.Errorf("unknown service: %s", s.service)
	}
	return nil, fmt.Errorf("unknown %s command: %s", s.service, command)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
