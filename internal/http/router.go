package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// APIPrefix 生产瓶颈 API 前缀
const APIPrefix = "/api/v1/production"

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterProductionRoutes 注册 /api/v1/production 下的全部路由
func (r *Router) RegisterProductionRoutes(h *ProductionHandler) {
	r.HandleHandler(APIPrefix+"/", h)
}

// RegisterHealthRoute 存活检查
func (r *Router) RegisterHealthRoute() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterMetricsRoute Prometheus 抓取端点
func (r *Router) RegisterMetricsRoute(h http.Handler) {
	r.HandleHandler("/metrics/prometheus", h)
}
