package sigchan

// Chan 是一个非阻塞、可合并的信号 channel。
// 缓冲满时新的信号被合并进已挂起的信号，不传递数据。
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel，bufferSize 至少为 1
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞），返回 false 表示已有挂起信号被合并
func (c *Chan) Emit() bool {
	select {
	case c.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}
