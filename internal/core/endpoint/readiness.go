package endpoint

import "sync"

// Readiness 读端就绪通知
//
// 缓冲区每次从空变为非空时，向每个注册的通道送出一次对应令牌。
// 送出是非阻塞的：通道已满时本次令牌被丢弃，调用方持有的未处理令牌
// 已足以驱动它取空缓冲区。调用方收到令牌后应反复 Take 直到返回 nil。
type Readiness struct {
	mu      sync.Mutex
	waiters map[any]chan<- any
}

func newReadiness() *Readiness {
	return &Readiness{waiters: make(map[any]chan<- any)}
}

// Register 注册令牌与通知通道，同一令牌重复注册时替换通道
func (r *Readiness) Register(token any, ch chan<- any) {
	r.mu.Lock()
	r.waiters[token] = ch
	r.mu.Unlock()
}

// Deregister 注销令牌
func (r *Readiness) Deregister(token any) {
	r.mu.Lock()
	delete(r.waiters, token)
	r.mu.Unlock()
}

// Len 返回注册数量
func (r *Readiness) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

func (r *Readiness) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, ch := range r.waiters {
		select {
		case ch <- token:
		default:
		}
	}
}

func (r *Readiness) clear() {
	r.mu.Lock()
	r.waiters = make(map[any]chan<- any)
	r.mu.Unlock()
}
