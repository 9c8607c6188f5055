// Package thread publishes an ordered chain of posts where each one replies to
// the post before it.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/social"
)

const (
	MaxSegments      = 4
	MaxSegmentLength = 250
)

var ErrInvalidThread = errors.New("invalid thread")

type Options struct {
	// MediaIDs are attached to the root post only.
	MediaIDs []string
}

// PostError reports a chain that stopped part way. Posted holds the ids that
// were published before the failure; they are not rolled back.
type PostError struct {
	Index  int
	Posted []string
	Err    error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("posting thread segment %d of chain (posted %d): %v", e.Index, len(e.Posted), e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}

type Poster struct {
	client social.Client
	clock  clock.Clock
	delay  time.Duration
}

func NewPoster(client social.Client, clk clock.Clock, delay time.Duration) *Poster {
	return &Poster{client: client, clock: clk, delay: delay}
}

// Validate checks the chain before any write is issued.
func Validate(segments []string) error {
	if len(segments) == 0 || len(segments) > MaxSegments {
		return fmt.Errorf("%w: %d segments, want 1-%d", ErrInvalidThread, len(segments), MaxSegments)
	}
	for i, s := range segments {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: segment %d is empty", ErrInvalidThread, i)
		}
		if n := utf8.RuneCountInString(s); n > MaxSegmentLength {
			return fmt.Errorf("%w: segment %d has %d characters, max %d", ErrInvalidThread, i, n, MaxSegmentLength)
		}
	}
	return nil
}

// Post publishes segments as a linear reply chain, pausing between posts. The
// first failure aborts the chain: nothing is retried and the ids posted so far
// are returned with a *PostError.
func (p *Poster) Post(ctx context.Context, segments []string, opts Options) ([]string, error) {
	if err := Validate(segments); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(segments))
	for i, text := range segments {
		if i > 0 {
			if err := p.clock.Sleep(ctx, p.delay); err != nil {
				return ids, &PostError{Index: i, Posted: ids, Err: err}
			}
		}

		req := social.PostRequest{Text: text}
		if i == 0 {
			req.MediaIDs = opts.MediaIDs
		} else {
			req.ReplyToID = ids[i-1]
		}

		id, err := p.client.Post(ctx, req)
		if err != nil {
			slog.WarnContext(ctx, "thread aborted",
				"segment", i,
				"posted", len(ids),
				"error", err)
			return ids, &PostError{Index: i, Posted: ids, Err: err}
		}
		ids = append(ids, id)
	}

	slog.InfoContext(ctx, "thread posted", "root_id", ids[0], "segments", len(ids))
	return ids, nil
}
