package strategies

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// objectSchema 未登记类型的兜底：parameters 必须是 JSON 对象
const objectSchema = `{"type": "object"}`

// momentumSchema 动量策略（均线交叉 + RSI）的参数
const momentumSchema = `{
	"type": "object",
	"properties": {
		"short_window":   {"type": "integer", "minimum": 1},
		"long_window":    {"type": "integer", "minimum": 1},
		"rsi_period":     {"type": "integer", "minimum": 1},
		"rsi_oversold":   {"type": "number", "minimum": 0, "maximum": 100},
		"rsi_overbought": {"type": "number", "minimum": 0, "maximum": 100}
	}
}`

// Validator 用 JSON Schema 校验 parameters 文本
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator 编译 schema
func NewValidator(schema []byte) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("strategies: parse schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// LoadValidator 从文件加载 schema
func LoadValidator(path string) (*Validator, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("strategies: schema path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strategies: read schema %q: %w", path, err)
	}
	v, err := NewValidator(data)
	if err != nil {
		return nil, fmt.Errorf("strategies: schema %q: %w", path, err)
	}
	return v, nil
}

func mustValidator(schema string) *Validator {
	v, err := NewValidator([]byte(schema))
	if err != nil {
		panic(err)
	}
	return v
}

// Validate 校验 parameters。空串按 "{}" 处理
func (v *Validator) Validate(parameters string) error {
	if strings.TrimSpace(parameters) == "" {
		parameters = "{}"
	}
	if v == nil || v.schema == nil {
		return nil
	}
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(parameters))
	if err != nil {
		// 不是合法 JSON
		return &ValidationError{Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Problems: problems}
}

// Registry 按策略类型登记参数 schema。
// 类型取名称的第一个单词（小写），如 "Momentum Strategy" -> "momentum"
type Registry struct {
	schemas  map[string]*Validator
	fallback *Validator
	mu       sync.RWMutex
}

// NewRegistry 创建注册表，内置 momentum
func NewRegistry() *Registry {
	r := &Registry{
		schemas:  make(map[string]*Validator),
		fallback: mustValidator(objectSchema),
	}
	r.schemas["momentum"] = mustValidator(momentumSchema)
	return r
}

// Register 登记某类型的 schema
func (r *Registry) Register(kind string, v *Validator) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || v == nil {
		return fmt.Errorf("strategies: invalid schema registration %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[kind]; exists {
		return fmt.Errorf("strategies: schema for %s already registered", kind)
	}
	r.schemas[kind] = v
	return nil
}

// SetDefault 替换未登记类型使用的 schema
func (r *Registry) SetDefault(v *Validator) {
	if v == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = v
}

// Get 获取某类型的 schema
func (r *Registry) Get(kind string) (*Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.schemas[strings.ToLower(kind)]
	return v, ok
}

// List 已登记的类型（有序）
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ForName 策略名称对应的 schema，未登记则返回兜底
func (r *Registry) ForName(name string) *Validator {
	if v, ok := r.Get(Kind(name)); ok {
		return v
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Kind 策略类型
func Kind(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
