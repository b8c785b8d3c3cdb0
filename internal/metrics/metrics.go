// Package metrics 记录进程内的业务计数，供 /metrics 接口输出
package metrics

import (
	"sync"
	"time"
)

// Metrics 业务计数器，并发安全
type Metrics struct {
	mu sync.RWMutex

	sessionsCreated    int64
	turnsTotal         int64
	turnsUnrecognized  int64
	sessionsCompleted  int64
	resumesGenerated   int64
	generationFailures int64
	downloads          int64
	lastUpdateTime     time.Time
	startTime          time.Time
	now                func() time.Time
}

// Snapshot 某一时刻的计数快照
type Snapshot struct {
	SessionsCreated    int64     `json:"sessions_created"`
	TurnsTotal         int64     `json:"turns_total"`
	TurnsRecognized    int64     `json:"turns_recognized"`
	TurnsUnrecognized  int64     `json:"turns_unrecognized"`
	SessionsCompleted  int64     `json:"sessions_completed"`
	ResumesGenerated   int64     `json:"resumes_generated"`
	GenerationFailures int64     `json:"generation_failures"`
	Downloads          int64     `json:"downloads"`
	ActiveSessions     int       `json:"active_sessions"`
	UptimeSeconds      int64     `json:"uptime_seconds"`
	LastUpdateTime     time.Time `json:"last_update_time"`
}

func NewMetrics() *Metrics {
	return newMetrics(time.Now)
}

func newMetrics(now func() time.Time) *Metrics {
	t := now()
	return &Metrics{
		lastUpdateTime: t,
		startTime:      t,
		now:            now,
	}
}

func (m *Metrics) IncrementSessionsCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsCreated++
	m.lastUpdateTime = m.now()
}

// IncrementTurn 记录一次非空回答，recognized 表示提取成功
func (m *Metrics) IncrementTurn(recognized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnsTotal++
	if !recognized {
		m.turnsUnrecognized++
	}
	m.lastUpdateTime = m.now()
}

func (m *Metrics) IncrementSessionsCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsCompleted++
	m.lastUpdateTime = m.now()
}

// IncrementGeneration 记录一次文档生成，失败单独计数
func (m *Metrics) IncrementGeneration(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.resumesGenerated++
	} else {
		m.generationFailures++
	}
	m.lastUpdateTime = m.now()
}

func (m *Metrics) IncrementDownloads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
	m.lastUpdateTime = m.now()
}

// GetSnapshot 返回当前计数，activeSessions 由调用方从会话存储读取
func (m *Metrics) GetSnapshot(activeSessions int) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		SessionsCreated:    m.sessionsCreated,
		TurnsTotal:         m.turnsTotal,
		TurnsRecognized:    m.turnsTotal - m.turnsUnrecognized,
		TurnsUnrecognized:  m.turnsUnrecognized,
		SessionsCompleted:  m.sessionsCompleted,
		ResumesGenerated:   m.resumesGenerated,
		GenerationFailures: m.generationFailures,
		Downloads:          m.downloads,
		ActiveSessions:     activeSessions,
		UptimeSeconds:      int64(m.now().Sub(m.startTime) / time.Second),
		LastUpdateTime:     m.lastUpdateTime,
	}
}
