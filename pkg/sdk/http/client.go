package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader 每个请求都带上的追踪 ID
const RequestIDHeader = "X-Request-ID"

type Client struct {
	client *resty.Client
}

// NewClient 创建 API 客户端。重试固定为 0：调用方的下一次轮询就是重试。
func NewClient(host string, timeout time.Duration) *Client {
	host = strings.TrimSuffix(host, "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(logrus.WithField("module", "http")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "tradedash/1.0")

	return &Client{client: client}
}

// SetTransport 替换底层 transport（测试用）
func (c *Client) SetTransport(rt http.RoundTripper) *Client {
	c.client.SetTransport(rt)
	return c
}

// BaseURL 返回规范化后的 base url
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

type RequestOptions struct {
	Headers    map[string]string
	Data       any
	Params     map[string]any
	PathParams map[string]string
}

// Response 原始响应：状态码和未解析的 body，解码由调用方负责
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
	RequestID  string
	Duration   time.Duration
}

// IsSuccess 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// 仅设置本次请求的 Header（不要再改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) (*resty.Request, string) {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	id := uuid.NewString()
	r.SetHeader(RequestIDHeader, id)
	return r, id
}

// DoRequest 发出一次请求。只有请求本身无法完成时才返回 error；
// 非 2xx 通过 Response.StatusCode 体现。
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions) (*Response, error) {
	rc, id := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.PathParams != nil {
			rc.SetPathParams(opt.PathParams)
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}

	m := strings.ToUpper(method)
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	resp, err := rc.Execute(m, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s (request_id=%s)", m, endpoint, id)
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       resp.Body(),
		RequestID:  id,
		Duration:   resp.Time(),
	}, nil
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}
