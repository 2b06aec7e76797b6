// Package apiserver 是看板对接的参考后端：组合、行情与策略的 REST 接口，
// 数据落在 sqlite（默认）或 postgres。
package apiserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/cache"
	sdkhttp "github.com/betbot/tradedash/pkg/sdk/http"
)

var log = logrus.WithField("module", "apiserver")

// DefaultCashBalance 自动创建组合时的初始现金
const DefaultCashBalance = 100000.0

type Config struct {
	// DSN 以 postgres:// 或 postgresql:// 开头时连 postgres，否则是 sqlite 文件路径（":memory:" 为内存库）
	DSN string
	// Registry 校验策略参数，为空时用内置注册表
	Registry *strategies.Registry
	// MarketDataTTL 行情查询结果的缓存时间，默认 2s，负数关闭
	MarketDataTTL time.Duration
}

type Server struct {
	cfg      Config
	db       *sql.DB
	dialect  dialect
	registry *strategies.Registry
	bars     *cache.InMemoryCache[barsKey, []domain.MarketDataBar]
}

func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("dsn is required")
	}

	d := dialectFor(cfg.DSN)
	if d == dialectSQLite && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open(d.driver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver(), err)
	}
	if d == dialectSQLite {
		db.SetMaxOpenConns(1) // SQLite：单连接更稳定
		db.SetMaxIdleConns(1)
	}

	if cfg.Registry == nil {
		cfg.Registry = strategies.NewRegistry()
	}
	if cfg.MarketDataTTL == 0 {
		cfg.MarketDataTTL = 2 * time.Second
	}
	s := &Server{cfg: cfg, db: db, dialect: d, registry: cfg.Registry}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.MarketDataTTL > 0 {
		s.bars = cache.NewInMemoryCache[barsKey, []domain.MarketDataBar](cfg.MarketDataTTL, time.Minute)
	}
	log.Infof("storage ready (%s)", d.driver())
	return s, nil
}

func (s *Server) Close() error {
	if s.bars != nil {
		s.bars.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api/v1")

	portfolio := api.Group("/portfolio")
	portfolio.GET("/summary", s.wrap(s.handleSummary))
	portfolio.GET("/positions", s.wrap(s.handlePositions))
	portfolio.GET("/trades", s.wrap(s.handleTrades))

	api.GET("/market-data/:symbol", s.wrap(s.handleMarketData))

	strats := api.Group("/strategies")
	strats.GET("", s.wrap(s.handleStrategiesList))
	strats.POST("", s.wrap(s.handleStrategiesCreate))
	byID := strats.Group("/:id")
	byID.PUT("", s.wrap(s.handleStrategyUpdate))
	byID.PATCH("", s.wrap(s.handleStrategySetActive))
	byID.DELETE("", s.wrap(s.handleStrategyDelete))

	api.GET("/trading/health", s.wrap(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	return r
}

// requestLogger 回写 X-Request-ID 并按请求记一行 debug 日志
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(sdkhttp.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(sdkhttp.RequestIDHeader, id)
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": id,
			"took":       time.Since(start),
		}).Debug("request")
	}
}

type paramsKeyType string

const paramsKey paramsKeyType = "tradedash_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}
