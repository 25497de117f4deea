package control

import (
	"PollTally/db"
	"PollTally/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrStorageRead 存储介质读取失败
	ErrStorageRead = errors.New("storage read failed")
	// ErrMalformedTally 存储的票数无法解析
	ErrMalformedTally = errors.New("malformed vote tally")
)

// VoteNotifier 投票成功写入后收到通知，option 为本次投票的选项
type VoteNotifier interface {
	NotifyVote(ctx context.Context, option string, tally model.VoteTally) error
}

// PollService 投票数据读写，不在内存中保存任何状态，每次调用都重新读取存储
type PollService struct {
	storage  db.Storage
	notifier VoteNotifier
}

// Option 配置 PollService
type Option func(*PollService)

// WithNotifier 投票写入成功后推送事件
func WithNotifier(n VoteNotifier) Option {
	return func(s *PollService) {
		s.notifier = n
	}
}

func NewPollService(storage db.Storage, opts ...Option) *PollService {
	s := &PollService{storage: storage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadVotes 读取票数并区分失败原因。键不存在或为空时返回全 0 的默认 tally。
func (s *PollService) LoadVotes(ctx context.Context) (model.VoteTally, error) {
	votesJson, ok, err := s.storage.Get(ctx, model.VotesKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageRead, err)
	}
	if !ok || votesJson == "" {
		return model.DefaultTally(), nil
	}

	var tally model.VoteTally
	if err := json.Unmarshal([]byte(votesJson), &tally); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTally, err)
	}
	if tally == nil {
		// JSON null 解析成功但没有内容
		return model.VoteTally{}, nil
	}
	return tally, nil
}

// GetVotes 读取票数，任何读取或解析失败都回退到全 0 的默认 tally
func (s *PollService) GetVotes(ctx context.Context) model.VoteTally {
	tally, err := s.LoadVotes(ctx)
	if err != nil {
		log.WithError(err).WithField("key", model.VotesKey).Warn("falling back to default tally")
		return model.DefaultTally()
	}
	return tally
}

// Vote 给 option 加一票。option 不在当前 tally 中时什么都不做，也不写存储。
func (s *PollService) Vote(ctx context.Context, option string) error {
	_, _, err := s.CastVote(ctx, option)
	return err
}

// CastVote 与 Vote 相同，另外返回写入后的 tally 以及本次是否真正计票。
// 通知在释放锁之后发送，慢的 notifier 不会挡住其他投票。
func (s *PollService) CastVote(ctx context.Context, option string) (model.VoteTally, bool, error) {
	votes, recorded, err := s.recordVote(ctx, option)
	if err != nil || !recorded {
		return votes, recorded, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyVote(ctx, option, votes.Clone()); err != nil {
			log.WithError(err).WithField("option", option).Warn("vote notification failed")
		}
	}
	return votes, true, nil
}

// recordVote 在锁内完成读-改-写，返回后锁已释放
func (s *PollService) recordVote(ctx context.Context, option string) (model.VoteTally, bool, error) {
	if locker, ok := s.storage.(db.Locker); ok {
		unlock, err := locker.Lock(ctx, model.VotesKey)
		if err != nil {
			return nil, false, fmt.Errorf("vote %q: %w", option, err)
		}
		defer unlock()
	}

	votes := s.GetVotes(ctx)
	if _, ok := votes[option]; !ok {
		log.WithField("option", option).Debug("ignoring vote for unknown option")
		return votes, false, nil
	}

	votes[option]++
	votesJson, err := json.Marshal(votes)
	if err != nil {
		return nil, false, fmt.Errorf("encode tally: %w", err)
	}
	if err := s.storage.Set(ctx, model.VotesKey, string(votesJson)); err != nil {
		return nil, false, fmt.Errorf("vote %q: %w", option, err)
	}
	log.WithFields(log.Fields{"option": option, "votes": votes[option]}).Info("vote recorded")
	return votes, true, nil
}

// HasVoted 存储值严格等于 "true" 时返回 true，读取失败视为未投票
func (s *PollService) HasVoted(ctx context.Context) bool {
	hasVoted, _, err := s.storage.Get(ctx, model.HasVotedKey)
	if err != nil {
		log.WithError(err).WithField("key", model.HasVotedKey).Warn("treating voted flag as unset")
		return false
	}
	return hasVoted == model.VotedValue
}

// SetVoted 标记为已投票
func (s *PollService) SetVoted(ctx context.Context) error {
	return s.storage.Set(ctx, model.HasVotedKey, model.VotedValue)
}

// ResetVote 删除已投票标记
func (s *PollService) ResetVote(ctx context.Context) error {
	return s.storage.Remove(ctx, model.HasVotedKey)
}
