package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"resume-builder/internal/interview"
	"resume-builder/internal/logger"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = time.Minute

	// 被淘汰或删除的 id 在此期间不会再从快照恢复
	tombstoneTTL = 5 * time.Minute
)

// SnapshotStore 会话快照的外部持久化。LoadSession 在快照不存在时返回 (nil, nil)，
// DeleteSession 返回快照是否存在
type SnapshotStore interface {
	SaveSession(ctx context.Context, id string, data []byte, ttl time.Duration) error
	LoadSession(ctx context.Context, id string) ([]byte, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	TTL           time.Duration // 会话空闲超过 TTL 后被淘汰
	MaxSessions   int           // 内存中最多保留的会话数，<= 0 表示不限制
	SweepInterval time.Duration
}

type entry struct {
	mu       sync.Mutex
	sess     *Session
	evicted  bool      // 受 mu 保护
	lastUsed time.Time // 受 Store.mu 保护
}

// Store 会话存储。同一会话的操作串行执行，不同会话之间互不阻塞
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	tombstones map[string]time.Time // 受 mu 保护
	script     *interview.Script
	opts      Options
	cfg       StoreConfig
	snapshots SnapshotStore
	now       func() time.Time
}

// StoreOption Store 的可选配置
type StoreOption func(*Store)

// WithSnapshotStore 启用外部快照持久化
func WithSnapshotStore(ss SnapshotStore) StoreOption {
	return func(s *Store) {
		s.snapshots = ss
	}
}

// NewStore 创建会话存储
func NewStore(script *interview.Script, opts Options, cfg StoreConfig, storeOpts ...StoreOption) *Store {
	opts = opts.withDefaults()
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	s := &Store{
		entries:    make(map[string]*entry),
		tombstones: make(map[string]time.Time),
		script:     script,
		opts:       opts,
		cfg:        cfg,
		now:        opts.Now,
	}
	for _, opt := range storeOpts {
		opt(s)
	}
	return s
}

// Create 创建新会话并返回第一个问题
func (s *Store) Create(ctx context.Context) (id string, prompt string, err error) {
	uid, err := uuid.NewV7()
	if err != nil {
		return "", "", fmt.Errorf("生成会话id失败: %w", err)
	}
	id = uid.String()

	sess := New(id, s.script, s.opts)
	if prompt, err = sess.Start(); err != nil {
		return "", "", err
	}

	s.mu.Lock()
	s.entries[id] = &entry{sess: sess, lastUsed: s.now()}
	victims := s.collectVictimsLocked(s.now(), id)
	s.mu.Unlock()

	s.persist(ctx, sess)
	s.evict(ctx, victims)
	return id, prompt, nil
}

// Do 在会话锁内执行 fn，fn 成功返回后保存快照。锁在所有返回路径上释放
func (s *Store) Do(ctx context.Context, id string, fn func(*Session) error) error {
	return s.with(ctx, id, "do", true, fn)
}

// View 在会话锁内执行只读操作，不保存快照
func (s *Store) View(ctx context.Context, id string, fn func(*Session) error) error {
	return s.with(ctx, id, "view", false, fn)
}

func (s *Store) with(ctx context.Context, id, op string, mutate bool, fn func(*Session) error) error {
	e, err := s.acquire(ctx, id, op)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return NewNotFoundError(id, op)
	}

	if err := fn(e.sess); err != nil {
		return err
	}
	if mutate {
		s.persist(ctx, e.sess)
	}
	return nil
}

// acquire 查找会话，内存中不存在时尝试从快照恢复
func (s *Store) acquire(ctx context.Context, id, op string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		e.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	if s.snapshots == nil {
		return nil, NewNotFoundError(id, op)
	}
	data, err := s.snapshots.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("加载会话快照失败: %w", err)
	}
	if data == nil {
		return nil, NewNotFoundError(id, op)
	}
	sess, err := UnmarshalSnapshot(data, s.script, s.opts)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", id).Msg("会话快照无法恢复，按不存在处理")
		return nil, NewNotFoundError(id, op)
	}

	s.mu.Lock()
	if _, gone := s.tombstones[id]; gone {
		s.mu.Unlock()
		return nil, NewNotFoundError(id, op)
	}
	// 并发恢复时以先写入的为准
	if existing, ok := s.entries[id]; ok {
		e = existing
	} else {
		e = &entry{sess: sess}
		s.entries[id] = e
	}
	e.lastUsed = s.now()
	victims := s.collectVictimsLocked(s.now(), id)
	s.mu.Unlock()

	s.evict(ctx, victims)
	logger.Debug().Str("session_id", id).Msg("会话已从快照恢复")
	return e, nil
}

// Delete 删除会话。内存和快照中都不存在时返回 ErrSessionNotFound
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.buryLocked(id)
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.evicted = true
		e.mu.Unlock()
	}
	existed := ok
	if s.snapshots != nil {
		removed, err := s.snapshots.DeleteSession(ctx, id)
		if err != nil {
			return fmt.Errorf("删除会话快照失败: %w", err)
		}
		existed = existed || removed
	}
	if !existed {
		return NewNotFoundError(id, "delete")
	}
	return nil
}

// Len 内存中的会话数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep 淘汰空闲超时的会话，并在超过容量时按最近使用时间淘汰，返回淘汰数量
func (s *Store) Sweep(ctx context.Context) int {
	s.mu.Lock()
	victims := s.collectVictimsLocked(s.now(), "")
	s.mu.Unlock()

	s.evict(ctx, victims)
	return len(victims)
}

// Run 定期清理，直到 ctx 结束
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				logger.Info().Int("evicted", n).Int("remaining", s.Len()).Msg("已淘汰空闲会话")
			}
		}
	}
}

type victim struct {
	id    string
	entry *entry
}

// collectVictimsLocked 从 map 中摘除需要淘汰的会话，调用方需持有 s.mu。keep 指定不参与容量淘汰的会话
func (s *Store) collectVictimsLocked(now time.Time, keep string) []victim {
	for id, at := range s.tombstones {
		if now.Sub(at) > tombstoneTTL {
			delete(s.tombstones, id)
		}
	}

	var victims []victim
	for id, e := range s.entries {
		if now.Sub(e.lastUsed) > s.cfg.TTL {
			victims = append(victims, victim{id: id, entry: e})
			delete(s.entries, id)
			s.buryLocked(id)
		}
	}

	if s.cfg.MaxSessions > 0 && len(s.entries) > s.cfg.MaxSessions {
		candidates := make([]victim, 0, len(s.entries))
		for id, e := range s.entries {
			if id != keep {
				candidates = append(candidates, victim{id: id, entry: e})
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].entry.lastUsed.Before(candidates[j].entry.lastUsed)
		})
		for _, v := range candidates[:len(s.entries)-s.cfg.MaxSessions] {
			victims = append(victims, v)
			delete(s.entries, v.id)
			s.buryLocked(v.id)
		}
	}
	return victims
}

// buryLocked 记录已移除的 id，防止快照删除完成前被并发请求重新恢复。调用方需持有 s.mu
func (s *Store) buryLocked(id string) {
	if s.snapshots != nil {
		s.tombstones[id] = s.now()
	}
}

func (s *Store) evict(ctx context.Context, victims []victim) {
	for _, v := range victims {
		v.entry.mu.Lock()
		v.entry.evicted = true
		v.entry.mu.Unlock()

		if s.snapshots != nil {
			if _, err := s.snapshots.DeleteSession(ctx, v.id); err != nil {
				logger.Warn().Err(err).Str("session_id", v.id).Msg("删除已淘汰会话的快照失败")
			}
		}
	}
}

// persist 保存快照，失败只记录日志，内存中的会话仍然有效
func (s *Store) persist(ctx context.Context, sess *Session) {
	if s.snapshots == nil {
		return
	}
	data, err := sess.MarshalSnapshot()
	if err == nil {
		err = s.snapshots.SaveSession(ctx, sess.ID(), data, s.cfg.TTL)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Str("session_id", sess.ID()).Msg("保存会话快照失败")
	}
}
