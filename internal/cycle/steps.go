package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/banabets/else/common/logger"
	"github.com/banabets/else/internal/content"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/quota"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/strategy"
	"github.com/banabets/else/internal/thread"
)

var errWritesBlocked = errors.New("writes blocked by quota guard")

func (o *Orchestrator) checkQuota(ctx context.Context, _ *model.Cycle) (model.StepResult, error) {
	var probeErr error
	state := o.state.Guard.Check(ctx, func(ctx context.Context) error {
		u, err := o.deps.Social.Me(ctx)
		if err != nil {
			probeErr = err
			return err
		}
		o.state.Self = &u
		return nil
	})

	switch {
	case state == quota.StateExhausted:
		slog.InfoContext(ctx, "write quota exhausted, posting disabled this cycle",
			"reset_at", o.state.Guard.ResetAt())
		return model.StepResultOK, nil
	case probeErr != nil:
		return model.StepResultFailed, fmt.Errorf("probing quota: %w", probeErr)
	}

	slog.DebugContext(ctx, "write quota checked", "state", state)
	return model.StepResultOK, nil
}

// replyMentions answers new mentions oldest first. While the guard blocks
// writes the mentions are still read but left unhandled for a later cycle.
func (o *Orchestrator) replyMentions(ctx context.Context, c *model.Cycle) (model.StepResult, error) {
	self, err := o.self(ctx)
	if err != nil {
		return model.StepResultFailed, err
	}

	mentions, err := o.deps.Social.SearchMentions(ctx, self.Username, o.state.LastMentionID, mentionSearchSize)
	if err != nil {
		return model.StepResultFailed, fmt.Errorf("reading mentions: %w", err)
	}

	pending := make([]model.Post, 0, len(mentions))
	for _, m := range mentions {
		if m.AuthorID == self.ID || o.state.hasReplied(m.ID) {
			continue
		}
		pending = append(pending, m)
	}
	slices.SortFunc(pending, func(a, b model.Post) int {
		switch {
		case idAfter(a.ID, b.ID):
			return 1
		case idAfter(b.ID, a.ID):
			return -1
		}
		return 0
	})

	slog.InfoContext(ctx, "read mentions", "found", len(mentions), "pending", len(pending))

	if !o.state.Guard.AllowWrite() {
		slog.InfoContext(ctx, "write quota exhausted, not replying to mentions",
			"pending", len(pending),
			"reset_at", o.state.Guard.ResetAt())
		return model.StepResultOK, nil
	}
	if len(pending) == 0 {
		return model.StepResultOK, nil
	}

	if limit := o.cfg.MentionReplyLimit; limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	usernames := o.usernames(ctx, pending)

	for i, m := range pending {
		if err := o.pause(ctx, i == 0); err != nil {
			return model.StepResultFailed, err
		}

		mctx := logger.WithLogFields(ctx, logger.LogFields{PostID: logger.Ptr(m.ID)})
		text, err := o.deps.Composer.MentionReply(mctx, usernames[m.AuthorID], m)
		if err != nil {
			slog.WarnContext(mctx, "mention reply generation failed, skipping", "error", err)
			o.state.advanceMention(m.ID)
			continue
		}

		if err := o.reply(mctx, c, m.ID, text); err != nil {
			return model.StepResultFailed, err
		}
		o.state.advanceMention(m.ID)
	}
	return model.StepResultOK, nil
}

func (o *Orchestrator) engage(ctx context.Context, c *model.Cycle) (model.StepResult, error) {
	if !o.state.Guard.AllowWrite() {
		slog.InfoContext(ctx, "write quota exhausted, skipping engagement",
			"reset_at", o.state.Guard.ResetAt())
		return model.StepResultSkipped, nil
	}
	if len(o.cfg.Topics) == 0 {
		slog.DebugContext(ctx, "no topics configured, skipping engagement")
		return model.StepResultSkipped, nil
	}

	self, err := o.self(ctx)
	if err != nil {
		return model.StepResultFailed, err
	}

	candidates, err := o.deps.Ranker.RankWithFallback(ctx, o.cfg.Topics, self.ID)
	if err != nil {
		return model.StepResultFailed, fmt.Errorf("ranking candidates: %w", err)
	}

	limit := o.cfg.EngageReplyLimit
	if limit <= 0 {
		limit = 1
	}

	replied := 0
	for _, cand := range candidates {
		if replied == limit {
			break
		}
		if o.state.hasReplied(cand.ID) {
			continue
		}
		if err := o.pause(ctx, replied == 0); err != nil {
			return model.StepResultFailed, err
		}

		cctx := logger.WithLogFields(ctx, logger.LogFields{PostID: logger.Ptr(cand.ID)})
		text, err := o.deps.Composer.EngageReply(cctx, cand)
		if err != nil {
			slog.WarnContext(cctx, "engagement reply generation failed, skipping", "error", err)
			continue
		}
		if err := o.reply(cctx, c, cand.ID, text); err != nil {
			return model.StepResultFailed, err
		}
		replied++
	}

	slog.InfoContext(ctx, "engagement done", "candidates", len(candidates), "replied", replied)
	return model.StepResultOK, nil
}

// follow runs whatever the quota state; follows do not draw on the post quota.
// A follow that reports the daily quota gone still exhausts the guard.
func (o *Orchestrator) follow(ctx context.Context, c *model.Cycle) (model.StepResult, error) {
	self, err := o.self(ctx)
	if err != nil {
		return model.StepResultFailed, err
	}

	users, err := o.deps.Recommender.Recommend(ctx, self, o.cfg.FollowCap)
	if err != nil {
		return model.StepResultFailed, fmt.Errorf("recommending accounts: %w", err)
	}
	if len(users) == 0 {
		slog.InfoContext(ctx, "no accounts worth following this cycle")
		return model.StepResultOK, nil
	}

	n, err := o.deps.Recommender.FollowBatch(ctx, self.ID, users)
	c.Follows += n
	if err != nil {
		// a follow window is per endpoint; only the daily signal is account-wide
		if se, ok := social.AsError(err); ok && se.DailyQuotaExhausted() {
			o.state.Guard.ObserveWriteError(ctx, err)
		}
		return model.StepResultFailed, fmt.Errorf("following accounts (%d of %d done): %w", n, len(users), err)
	}

	slog.InfoContext(ctx, "follow batch done", "followed", n, "recommended", len(users))
	return model.StepResultOK, nil
}

// usernames resolves mention authors for the reply prompt. A failed lookup
// only costs the greeting.
func (o *Orchestrator) usernames(ctx context.Context, posts []model.Post) map[string]string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID != "" && !slices.Contains(ids, p.AuthorID) {
			ids = append(ids, p.AuthorID)
		}
	}
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out
	}

	users, err := o.deps.Social.LookupUsers(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "looking up mention authors failed", "error", err)
		return out
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out
}

// reply issues one quota-consuming reply. A rate-limit exhausts the guard and
// is returned; forbidden and other failures only skip this post.
func (o *Orchestrator) reply(ctx context.Context, c *model.Cycle, postID, text string) error {
	if !o.state.Guard.AllowWrite() {
		return errWritesBlocked
	}

	id, err := o.deps.Social.Reply(ctx, postID, text)
	if err != nil {
		if o.state.Guard.ObserveWriteError(ctx, err) {
			return fmt.Errorf("replying to %s: %w", postID, err)
		}
		if social.IsForbidden(err) {
			slog.WarnContext(ctx, "reply forbidden, skipping post", "error", err)
			o.state.markReplied(postID)
			return nil
		}
		slog.WarnContext(ctx, "reply failed, skipping post", "error", err)
		return nil
	}

	o.state.Guard.RecordWrite()
	o.state.markReplied(postID)
	c.Replies++
	slog.InfoContext(ctx, "replied", "reply_id", id, "text", logger.Truncate(text, 80))
	return nil
}

// post publishes the cycle's content. Rate-limit and forbidden end the step
// with an outcome; generation failures skip it; anything else is returned.
func (o *Orchestrator) post(ctx context.Context, c *model.Cycle) (model.StepResult, error) {
	guard := o.state.Guard
	if !guard.AllowWrite() {
		c.Outcome = model.OutcomePostSkippedQuota
		slog.InfoContext(ctx, "write quota exhausted, skipping post", "reset_at", guard.ResetAt())
		return model.StepResultSkipped, nil
	}

	st := o.deps.Selector.Pick(o.deps.Random)
	c.Strategy = st
	ctx = logger.WithLogFields(ctx, logger.LogFields{Strategy: logger.Ptr(st.String())})

	selfID := ""
	if o.state.Self != nil {
		selfID = o.state.Self.ID
	}
	draft, err := o.deps.Composer.Compose(ctx, st, content.Input{
		SelfID:  selfID,
		Topic:   o.topic(),
		Counter: o.state.Counter,
	})
	if err != nil {
		c.Outcome = model.OutcomePostSkippedGeneration
		slog.WarnContext(ctx, "content generation failed, skipping post", "error", err)
		return model.StepResultSkipped, nil
	}

	var mediaIDs []string
	if o.deps.Composer.HasImages() && strategy.Chance(o.deps.Random, o.cfg.ImageProbability) {
		mediaID, err := o.attachImage(ctx, draft)
		if err != nil {
			return o.postFailed(ctx, c, err)
		}
		if mediaID != "" {
			mediaIDs = []string{mediaID}
		}
	}

	if len(draft.Segments) > 0 {
		ids, err := o.deps.Threads.Post(ctx, draft.Segments, thread.Options{MediaIDs: mediaIDs})
		c.PostIDs = append(c.PostIDs, ids...)
		for range ids {
			guard.RecordWrite()
		}
		if err != nil {
			if errors.Is(err, thread.ErrInvalidThread) {
				c.Outcome = model.OutcomePostSkippedGeneration
				slog.WarnContext(ctx, "generated thread is not postable, skipping", "error", err)
				return model.StepResultSkipped, nil
			}
			return o.postFailed(ctx, c, err)
		}
	} else {
		id, err := o.deps.Social.Post(ctx, social.PostRequest{Text: draft.Text, MediaIDs: mediaIDs})
		if err != nil {
			return o.postFailed(ctx, c, err)
		}
		guard.RecordWrite()
		c.PostIDs = append(c.PostIDs, id)
	}

	c.Outcome = model.OutcomeCompleted
	slog.InfoContext(ctx, "posted",
		"post_ids", c.PostIDs,
		"media", len(mediaIDs) > 0,
		"text", logger.Truncate(draft.Body(), 80))
	return model.StepResultOK, nil
}

// attachImage generates and uploads an illustration. Generation and upload
// failures drop the image; only a rate-limit on the upload is returned.
func (o *Orchestrator) attachImage(ctx context.Context, draft content.Draft) (string, error) {
	sc := logger.StartSpan(ctx, "cycle.post.image")
	defer sc.End()
	ctx = sc.Context()

	data, err := o.deps.Composer.Image(ctx, draft)
	if err != nil {
		slog.WarnContext(ctx, "image generation failed, posting without image", "error", err)
		return "", nil
	}

	mediaID, err := o.deps.Social.UploadMedia(ctx, data)
	if err != nil {
		if social.IsRateLimited(err) {
			sc.RecordError(err)
			return "", fmt.Errorf("uploading media: %w", err)
		}
		slog.WarnContext(ctx, "media upload failed, posting without image", "error", err)
		return "", nil
	}

	o.state.Guard.RecordWrite()
	sc.SetAttributes(attribute.Int("media.bytes", len(data)))
	return mediaID, nil
}

func (o *Orchestrator) postFailed(ctx context.Context, c *model.Cycle, err error) (model.StepResult, error) {
	switch {
	case o.state.Guard.ObserveWriteError(ctx, err):
		c.Outcome = model.OutcomePostRateLimited
		slog.WarnContext(ctx, "post rate limited, retrying next cycle",
			"posted", len(c.PostIDs),
			"reset_at", o.state.Guard.ResetAt())
		return model.StepResultFailed, nil
	case social.IsForbidden(err):
		c.Outcome = model.OutcomePostForbidden
		slog.WarnContext(ctx, "post forbidden", "posted", len(c.PostIDs), "error", err)
		return model.StepResultFailed, nil
	}
	return model.StepResultFailed, fmt.Errorf("publishing %s: %w", c.Strategy, err)
}
