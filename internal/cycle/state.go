package cycle

import (
	"github.com/banabets/else/internal/content"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/quota"
)

// State is everything the agent remembers between cycles. It lives for the
// process and is owned by one Orchestrator; nothing else mutates it.
type State struct {
	Guard   *quota.Guard
	Counter *content.ObservationCounter

	// Self is the authenticated account, looked up once.
	Self *model.User
	// LastMentionID is the newest mention already handled.
	LastMentionID string
	// Replied holds ids of posts the agent already answered.
	Replied map[string]struct{}
}

func NewState(guard *quota.Guard) *State {
	return &State{
		Guard:   guard,
		Counter: &content.ObservationCounter{},
		Replied: make(map[string]struct{}),
	}
}

func (s *State) hasReplied(postID string) bool {
	_, ok := s.Replied[postID]
	return ok
}

func (s *State) markReplied(postID string) {
	s.Replied[postID] = struct{}{}
}

// advanceMention moves LastMentionID forward. Post ids are decimal snowflakes,
// so a longer id is always newer.
func (s *State) advanceMention(id string) {
	if idAfter(id, s.LastMentionID) {
		s.LastMentionID = id
	}
}

func idAfter(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
