package strategies

import (
	"context"

	"github.com/betbot/tradedash/internal/domain"
)

// Mode 编辑对话框状态
type Mode int

const (
	Closed Mode = iota
	Creating
	Editing
)

// Saver 对话框提交的去处（Coordinator 实现）
type Saver interface {
	Create(ctx context.Context, in domain.StrategyInput) (*domain.MutationResult, error)
	Update(ctx context.Context, id int64, in domain.StrategyInput) (*domain.MutationResult, error)
}

// Editor 新建/编辑对话框。保存成功才关闭，失败保持打开以便重试。
// 非并发安全，只在界面 goroutine 中使用
type Editor struct {
	saver Saver
	mode  Mode
	id    int64

	Draft domain.StrategyInput
	Err   error
}

// NewEditor 创建对话框模型
func NewEditor(s Saver) *Editor {
	return &Editor{saver: s}
}

// OpenNew 打开空白草稿
func (e *Editor) OpenNew() {
	e.mode = Creating
	e.id = 0
	e.Err = nil
	e.Draft = domain.StrategyInput{Parameters: domain.DefaultParameters}
}

// OpenEdit 以已有策略填充草稿
func (e *Editor) OpenEdit(s domain.Strategy) {
	e.mode = Editing
	e.id = s.ID
	e.Err = nil
	e.Draft = domain.StrategyInput{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  s.Parameters,
	}
	if e.Draft.Parameters == "" {
		e.Draft.Parameters = domain.DefaultParameters
	}
}

// Cancel 关闭并丢弃草稿
func (e *Editor) Cancel() {
	e.mode = Closed
	e.id = 0
	e.Err = nil
	e.Draft = domain.StrategyInput{}
}

func (e *Editor) Mode() Mode { return e.mode }
func (e *Editor) IsOpen() bool { return e.mode != Closed }
func (e *Editor) EditingID() int64 { return e.id }

// Title 对话框标题
func (e *Editor) Title() string {
	if e.mode == Editing {
		return "Edit Strategy"
	}
	return "Add New Strategy"
}

// Submission 当前草稿的提交内容，供异步执行
func (e *Editor) Submission() (Mode, int64, domain.StrategyInput) {
	return e.mode, e.id, e.Draft
}

// Complete 记录异步保存的结果：成功关闭，失败保留草稿与错误
func (e *Editor) Complete(err error) {
	if err != nil {
		e.Err = err
		return
	}
	e.Cancel()
}

// Save 同步保存
func (e *Editor) Save(ctx context.Context) error {
	if e.mode == Closed {
		return ErrEditorClosed
	}
	err := Submit(ctx, e.saver, e.mode, e.id, e.Draft)
	e.Complete(err)
	return err
}

// Submit 按模式调用 Create 或 Update
func Submit(ctx context.Context, s Saver, mode Mode, id int64, in domain.StrategyInput) error {
	var err error
	switch mode {
	case Creating:
		_, err = s.Create(ctx, in)
	case Editing:
		_, err = s.Update(ctx, id, in)
	default:
		err = ErrEditorClosed
	}
	return err
}
