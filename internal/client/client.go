package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mpbf-bottleneck/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1/production"

// envelope 服务端统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// APIError 服务端返回的错误响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bottleneck API error: %s (status: %d)", e.Message, e.StatusCode)
}

// AlertQuery 报警查询条件（空值不过滤）
type AlertQuery struct {
	Status    string
	SectionID string
	MachineID string
	Severity  string
	AlertType string
}

// Client 瓶颈检测 HTTP API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建客户端；userID 作为 X-User-Id 发送（确认/解决报警需要）
func NewClient(baseURL, userID string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryIdempotent).
		SetHeader("Accept", "application/json")
	if userID != "" {
		client.SetHeader("X-User-Id", userID)
	}

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// retryIdempotent 只重试 GET（网络错误或 5xx）；确认/解决报警重试会在首次成功后得到 409
func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

// ListAlerts 查询报警（detected_at 倒序）
func (c *Client) ListAlerts(ctx context.Context, q AlertQuery) ([]models.BottleneckAlert, error) {
	params := url.Values{}
	for k, v := range map[string]string{
		"status":     q.Status,
		"section_id": q.SectionID,
		"machine_id": q.MachineID,
		"severity":   q.Severity,
		"alert_type": q.AlertType,
	} {
		if v != "" {
			params.Set(k, v)
		}
	}

	var alerts []models.BottleneckAlert
	if err := c.do(ctx, c.httpClient.R().SetQueryParamsFromValues(params), "GET", "/alerts", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) GetAlert(ctx context.Context, alertID string) (*models.BottleneckAlert, error) {
	var alert models.BottleneckAlert
	if err := c.do(ctx, c.httpClient.R(), "GET", "/alerts/"+url.PathEscape(alertID), &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// AcknowledgeAlert 确认报警
func (c *Client) AcknowledgeAlert(ctx context.Context, alertID string) (*models.BottleneckAlert, error) {
	var alert models.BottleneckAlert
	if err := c.do(ctx, c.httpClient.R(), "PUT", "/alerts/"+url.PathEscape(alertID)+"/acknowledge", &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ResolveAlert 解决报警；notes 为空时不写入说明
func (c *Client) ResolveAlert(ctx context.Context, alertID, notes string) (*models.BottleneckAlert, error) {
	req := c.httpClient.R().SetHeader("Content-Type", "application/json")
	body := map[string]any{}
	if notes != "" {
		body["resolution_notes"] = notes
	}
	req.SetBody(body)

	var alert models.BottleneckAlert
	if err := c.do(ctx, req, "PUT", "/alerts/"+url.PathEscape(alertID)+"/resolve", &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListTargets 启用中的目标；sectionID 为空时返回全部
func (c *Client) ListTargets(ctx context.Context, sectionID string) ([]models.ProductionTarget, error) {
	req := c.httpClient.R()
	if sectionID != "" {
		req.SetQueryParam("section_id", sectionID)
	}
	var targets []models.ProductionTarget
	if err := c.do(ctx, req, "GET", "/targets", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// EfficiencyTrend 工段效率趋势；days <= 0 使用服务端默认窗口
func (c *Client) EfficiencyTrend(ctx context.Context, sectionID string, days int) (*models.TrendReport, error) {
	var report models.TrendReport
	if err := c.do(ctx, c.trendRequest(sectionID, days), "GET", "/trends/efficiency", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// DownloadTrendWorkbook 下载趋势 XLSX
func (c *Client) DownloadTrendWorkbook(ctx context.Context, sectionID string, days int) ([]byte, error) {
	var failure envelope
	resp, err := c.trendRequest(sectionID, days).
		SetContext(ctx).
		SetError(&failure).
		Get(apiPrefix + "/trends/efficiency/export")
	if err != nil {
		return nil, fmt.Errorf("failed to call bottleneck API: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: failure.Message}
	}
	return resp.Body(), nil
}

func (c *Client) trendRequest(sectionID string, days int) *resty.Request {
	req := c.httpClient.R().SetQueryParam("section_id", sectionID)
	if days > 0 {
		req.SetQueryParam("days", strconv.Itoa(days))
	}
	return req
}

// do 发送请求并把 Result 解码到 out；非 2xx 返回 *APIError
func (c *Client) do(ctx context.Context, req *resty.Request, method, path string, out any) error {
	var env envelope
	resp, err := req.
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Execute(method, apiPrefix+path)
	if err != nil {
		c.logger.Error("Bottleneck API call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to call bottleneck API: %w", err)
	}

	if resp.IsError() || env.Code != 2000 {
		c.logger.Debug("Bottleneck API returned error",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", env.Message),
		)
		return &APIError{StatusCode: resp.StatusCode(), Message: env.Message}
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
		}
	}
	return nil
}
