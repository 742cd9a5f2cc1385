package httpapi

import (
	"net/http"
	"strings"

	"mpbf-bottleneck/internal/service"

	"go.uber.org/zap"
)

// ProductionHandler 生产瓶颈 API Handler
type ProductionHandler struct {
	svc    *service.BottleneckService
	logger *zap.Logger
}

// NewProductionHandler 创建 Handler
func NewProductionHandler(svc *service.BottleneckService, logger *zap.Logger) *ProductionHandler {
	return &ProductionHandler{svc: svc, logger: logger}
}

// ServeHTTP 路由分发
func (h *ProductionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, APIPrefix), "/")
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	}

	switch segs[0] {
	case "metrics":
		h.routeMetrics(w, r, segs[1:])
	case "alerts":
		h.routeAlerts(w, r, segs[1:])
	case "targets":
		h.routeTargets(w, r, segs[1:])
	case "trends":
		h.routeTrends(w, r, segs[1:])
	case "notification-settings":
		h.routeNotificationSettings(w, r, segs[1:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ProductionHandler) routeMetrics(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.ListMetrics(w, r)
	case http.MethodPost:
		h.RecordMetric(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *ProductionHandler) routeAlerts(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.ListAlerts(w, r)
	case len(rest) == 1 && r.Method == http.MethodGet:
		h.GetAlert(w, r, rest[0])
	case len(rest) == 2 && rest[1] == "acknowledge" && r.Method == http.MethodPut:
		h.AcknowledgeAlert(w, r, rest[0])
	case len(rest) == 2 && rest[1] == "resolve" && r.Method == http.MethodPut:
		h.ResolveAlert(w, r, rest[0])
	case len(rest) <= 1 || (len(rest) == 2 && (rest[1] == "acknowledge" || rest[1] == "resolve")):
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ProductionHandler) routeTargets(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.ListTargets(w, r)
	case len(rest) == 0 && r.Method == http.MethodPost:
		h.CreateTarget(w, r)
	case len(rest) == 1 && r.Method == http.MethodGet:
		h.GetTarget(w, r, rest[0])
	case len(rest) == 1 && r.Method == http.MethodPut:
		h.UpdateTarget(w, r, rest[0])
	case len(rest) <= 1:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ProductionHandler) routeTrends(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 || rest[0] != "efficiency" || len(rest) > 2 || (len(rest) == 2 && rest[1] != "export") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if len(rest) == 2 {
		h.ExportEfficiencyTrend(w, r)
		return
	}
	h.GetEfficiencyTrend(w, r)
}

func (h *ProductionHandler) routeNotificationSettings(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.ListNotificationSettings(w, r)
	case len(rest) == 1 && r.Method == http.MethodGet:
		h.GetNotificationSetting(w, r, rest[0])
	case len(rest) == 1 && r.Method == http.MethodPut:
		h.UpsertNotificationSetting(w, r, rest[0])
	case len(rest) <= 1:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// fail 记录日志后写错误响应（客户端错误 Debug，服务端错误 Error）
func (h *ProductionHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if isClientError(err) {
		h.logger.Debug("Request rejected", fields...)
	} else {
		h.logger.Error("Request failed", fields...)
	}
	writeError(w, err)
}
