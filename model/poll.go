package model

import "sort"

// 存储介质中使用的键
const (
	VotesKey    = "poll_votes" // 票数，JSON 编码的 {选项: 票数}
	HasVotedKey = "has_voted"  // 是否已投票，只认字面量 "true"
	VotedValue  = "true"
)

// 固定的投票选项，不提供增删入口
const (
	OptionAgenticAI = "Agentic AI"
	OptionSimpleLLM = "Simple LLMs deployment"
	OptionMCP       = "MCP Model Context protocol"
)

// Options 按展示顺序排列的全部选项
var Options = []string{OptionAgenticAI, OptionSimpleLLM, OptionMCP}

// VoteTally 选项名到票数的映射
type VoteTally map[string]int

// DefaultTally 返回所有已知选项票数为 0 的新 tally
func DefaultTally() VoteTally {
	tally := make(VoteTally, len(Options))
	for _, option := range Options {
		tally[option] = 0
	}
	return tally
}

// IsOption 判断是否为已知选项
func IsOption(option string) bool {
	for _, o := range Options {
		if o == option {
			return true
		}
	}
	return false
}

// OptionVotes 单个选项的票数，用于有序输出
type OptionVotes struct {
	Option string `json:"option"`
	Votes  int    `json:"votes"`
}

// Ordered 先按已知选项顺序输出，再按名字输出存储中多出来的键
func (t VoteTally) Ordered() []OptionVotes {
	out := make([]OptionVotes, 0, len(t))
	for _, option := range Options {
		if votes, ok := t[option]; ok {
			out = append(out, OptionVotes{Option: option, Votes: votes})
		}
	}
	var extra []string
	for option := range t {
		if !IsOption(option) {
			extra = append(extra, option)
		}
	}
	sort.Strings(extra)
	for _, option := range extra {
		out = append(out, OptionVotes{Option: option, Votes: t[option]})
	}
	return out
}

// Clone 复制一份 tally，避免调用方之间共享底层 map
func (t VoteTally) Clone() VoteTally {
	if t == nil {
		return nil
	}
	out := make(VoteTally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
