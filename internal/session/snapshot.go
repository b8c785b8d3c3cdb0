package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"resume-builder/internal/assembler"
	"resume-builder/internal/interview"
	"resume-builder/internal/types"
)

// Snapshot 会话的可持久化表示。草稿不持久化，恢复时由答案重新推导
type Snapshot struct {
	ID          string          `json:"id"`
	State       State           `json:"state"`
	Started     bool            `json:"started"`
	Cursor      int             `json:"cursor"`
	Answers     types.Answers   `json:"answers"`
	Skipped     []string        `json:"skipped,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Artifact    *types.Artifact `json:"artifact,omitempty"`
}

// Snapshot 导出会话状态
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Started:   s.started,
		Cursor:    s.cursor,
		Answers:   s.answers.Clone(),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	for id := range s.skipped {
		snap.Skipped = append(snap.Skipped, id)
	}
	sort.Strings(snap.Skipped)
	if !s.completedAt.IsZero() {
		t := s.completedAt
		snap.CompletedAt = &t
	}
	if s.artifact != nil {
		a := *s.artifact
		snap.Artifact = &a
	}
	return snap
}

// MarshalSnapshot 序列化为 JSON
func (s *Session) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Restore 由快照重建会话，并校验快照与问卷一致
func Restore(snap Snapshot, script *interview.Script, opts Options) (*Session, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("快照缺少会话id")
	}
	if snap.Started && !snap.State.Finished() && (snap.Cursor < 0 || snap.Cursor >= script.Len()) {
		return nil, fmt.Errorf("快照游标 %d 超出问卷范围", snap.Cursor)
	}
	if (snap.Artifact != nil) != (snap.State == StateGenerated) {
		return nil, fmt.Errorf("快照状态 %s 与文档句柄不一致", snap.State)
	}

	s := New(snap.ID, script, opts)
	s.state = snap.State
	s.started = snap.Started
	s.cursor = snap.Cursor
	if snap.Answers != nil {
		s.answers = snap.Answers.Clone()
	}
	for _, id := range snap.Skipped {
		s.skipped[id] = true
	}
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	if snap.CompletedAt != nil {
		s.completedAt = *snap.CompletedAt
	}
	if snap.Artifact != nil {
		a := *snap.Artifact
		s.artifact = &a
	}
	s.draft = assembler.Project(s.answers)
	return s, nil
}

// UnmarshalSnapshot 从 JSON 恢复会话
func UnmarshalSnapshot(data []byte, script *interview.Script, opts Options) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析会话快照失败: %w", err)
	}
	return Restore(snap, script, opts)
}
