package domain

// Strategy 策略定义。Parameters / PerformanceMetrics 是不透明的文本（通常是 JSON）
type Strategy struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	IsActive           bool      `json:"is_active"`
	Parameters         string    `json:"parameters"`
	PerformanceMetrics *string   `json:"performance_metrics"`
	CreatedAt          Timestamp `json:"created_at"`
	UpdatedAt          Timestamp `json:"updated_at"`
}

// HasMetrics 是否有绩效数据
func (s Strategy) HasMetrics() bool {
	return s.PerformanceMetrics != nil && *s.PerformanceMetrics != ""
}

// StrategyInput 创建/编辑时提交的字段
type StrategyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  string `json:"parameters"`
}

// DefaultParameters 新建策略的默认参数
const DefaultParameters = "{}"

// MutationResult 写操作的应答。后端只回 id（以及 toggle 的 is_active / delete 的 status）
type MutationResult struct {
	ID       int64  `json:"id"`
	IsActive *bool  `json:"is_active,omitempty"`
	Status   string `json:"status,omitempty"`
}
