package session

import "fmt"

// State 会话状态
type State int

const (
	// StateActive 仍有问题需要回答
	StateActive State = iota
	// StateAwaitingConfirmation 必填问题已答完，可通过触发短语提前结束
	StateAwaitingConfirmation
	// StateCompleted 访谈结束，等待生成文档
	StateCompleted
	// StateGenerated 文档已生成
	StateGenerated
)

var stateNames = map[State]string{
	StateActive:               "active",
	StateAwaitingConfirmation: "awaiting_confirmation",
	StateCompleted:            "completed",
	StateGenerated:            "generated",
}

// String 返回状态名
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Finished 访谈是否已经结束
func (s State) Finished() bool {
	return s == StateCompleted || s == StateGenerated
}

// MarshalText 以状态名序列化
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("未知的会话状态: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText 从状态名解析
func (s *State) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("未知的会话状态: %q", string(b))
}
