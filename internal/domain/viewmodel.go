package domain

// Generation 轮询周期的单调递增编号，发起时分配
type Generation uint64

// ViewModel 当前展示的一致快照。发布后只读
type ViewModel struct {
	Summary    *PortfolioSummary
	Positions  []Position
	Trades     []Trade
	Generation Generation
}

// Clone 深拷贝，切片与 summary 都不与原值共享
func (v *ViewModel) Clone() *ViewModel {
	if v == nil {
		return nil
	}
	out := &ViewModel{
		Positions:  append([]Position{}, v.Positions...),
		Trades:     append([]Trade{}, v.Trades...),
		Generation: v.Generation,
	}
	if v.Summary != nil {
		s := *v.Summary
		out.Summary = &s
	}
	return out
}
