package social

import "context"

// WriteObserver receives one call per write issued through an instrumented
// client. result is "ok" or the error kind.
type WriteObserver interface {
	ObserveWrite(kind, result string)
}

type instrumented struct {
	Client
	observer WriteObserver
}

// Instrument reports every write of c to observer. Reads pass through.
func Instrument(c Client, observer WriteObserver) Client {
	if observer == nil {
		return c
	}
	return &instrumented{Client: c, observer: observer}
}

func (i *instrumented) observe(kind string, err error) {
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	i.observer.ObserveWrite(kind, result)
}

func (i *instrumented) Post(ctx context.Context, req PostRequest) (string, error) {
	id, err := i.Client.Post(ctx, req)
	kind := "post"
	if req.ReplyToID != "" {
		kind = "reply"
	}
	i.observe(kind, err)
	return id, err
}

func (i *instrumented) Reply(ctx context.Context, inReplyToID, text string) (string, error) {
	id, err := i.Client.Reply(ctx, inReplyToID, text)
	i.observe("reply", err)
	return id, err
}

func (i *instrumented) Follow(ctx context.Context, sourceUserID, targetUserID string) error {
	err := i.Client.Follow(ctx, sourceUserID, targetUserID)
	i.observe("follow", err)
	return err
}

func (i *instrumented) UploadMedia(ctx context.Context, data []byte) (string, error) {
	id, err := i.Client.UploadMedia(ctx, data)
	i.observe("upload_media", err)
	return id, err
}
