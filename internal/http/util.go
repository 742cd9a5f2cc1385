package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mpbf-bottleneck/internal/models"
)

const maxBodyBytes = 1 << 20

// errBadRequest 请求格式错误（无法解析的 JSON 或查询参数）
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor 错误对应的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlertNotFound),
		errors.Is(err, models.ErrTargetNotFound),
		errors.Is(err, models.ErrSettingNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlertStateConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func isClientError(err error) bool {
	return statusFor(err) < http.StatusInternalServerError
}

// writeError 按错误类型映射 HTTP 状态码，响应体为 Fail 结构；服务端错误不暴露细节
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, Fail(message))
}

func parseInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", errBadRequest, s)
	}
	return i, nil
}

// parseTime 解析 RFC3339 时间参数，空值返回 nil
func parseTime(name, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", errBadRequest, name)
	}
	return &t, nil
}

// optString 查询参数，空值返回 nil
func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
