package netstatus

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Monitor 网络状态能力：当前是否在线 + 恢复在线事件订阅
type Monitor interface {
	IsOnline() bool
	// Subscribe 注册状态变化回调，online 为变化后的状态。
	// 回调在监视协程中触发，不应阻塞。
	Subscribe(fn func(online bool))
}

// Prober 周期探测同步服务器可达性来判断在线状态。
// 探测失败视为离线，状态翻转时逐个触发订阅回调。
type Prober struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu          sync.RWMutex
	online      bool
	subscribers []func(online bool)

	stop chan struct{}
	once sync.Once
}

func NewProber(probeURL string, interval time.Duration, timeout time.Duration) *Prober {
	return &Prober{
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		stop:     make(chan struct{}),
	}
}

func (p *Prober) IsOnline() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

func (p *Prober) Subscribe(fn func(online bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// Start 启动探测循环。首次探测立即执行，之后按 interval 轮询。
func (p *Prober) Start() {
	go func() {
		p.check()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.check()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Prober) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *Prober) check() {
	online := p.probe()

	p.mu.Lock()
	changed := online != p.online
	p.online = online
	subs := make([]func(bool), len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(online)
		}
	}
}

func (p *Prober) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
