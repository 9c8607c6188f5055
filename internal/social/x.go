package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/banabets/else/common/guard"
	"github.com/banabets/else/core/config"
	"github.com/banabets/else/internal/model"
)

const (
	tweetFields = "created_at,public_metrics,author_id,conversation_id,in_reply_to_user_id"
	userFields  = "description,public_metrics"

	maxLookupBatch    = 100
	maxFollowingPages = 5
)

// XClient talks to the X API v2 with OAuth 1.0a user-context signing.
type XClient struct {
	http      *http.Client
	baseURL   string
	uploadURL string
	timeout   time.Duration
}

var _ Client = (*XClient)(nil)

// NewXClient signs every request with the configured user tokens. base is the
// transport underneath the signer; nil uses http.DefaultClient.
func NewXClient(cfg config.XConfig, callTimeout time.Duration, base *http.Client) *XClient {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, base)
	}

	oauthCfg := oauth1.NewConfig(cfg.APIKey, cfg.APIKeySecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)

	return &XClient{
		http:      oauthCfg.Client(ctx, token),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		uploadURL: cfg.UploadURL,
		timeout:   callTimeout,
	}
}

type xPublicMetrics struct {
	LikeCount      int `json:"like_count"`
	ReplyCount     int `json:"reply_count"`
	RetweetCount   int `json:"retweet_count"`
	QuoteCount     int `json:"quote_count"`
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	TweetCount     int `json:"tweet_count"`
}

type xTweet struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	AuthorID        string         `json:"author_id"`
	ConversationID  string         `json:"conversation_id"`
	InReplyToUserID string         `json:"in_reply_to_user_id"`
	CreatedAt       time.Time      `json:"created_at"`
	PublicMetrics   xPublicMetrics `json:"public_metrics"`
}

func (t xTweet) toModel() model.Post {
	return model.Post{
		ID:              t.ID,
		Text:            t.Text,
		AuthorID:        t.AuthorID,
		ConversationID:  t.ConversationID,
		InReplyToUserID: t.InReplyToUserID,
		CreatedAt:       t.CreatedAt,
		LikeCount:       t.PublicMetrics.LikeCount,
		ReplyCount:      t.PublicMetrics.ReplyCount,
		RepostCount:     t.PublicMetrics.RetweetCount,
		QuoteCount:      t.PublicMetrics.QuoteCount,
	}
}

type xUser struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	PublicMetrics xPublicMetrics `json:"public_metrics"`
}

func (u xUser) toModel() model.User {
	return model.User{
		ID:             u.ID,
		Username:       u.Username,
		Name:           u.Name,
		Description:    u.Description,
		FollowersCount: u.PublicMetrics.FollowersCount,
		FollowingCount: u.PublicMetrics.FollowingCount,
		TweetCount:     u.PublicMetrics.TweetCount,
	}
}

type xMeta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token"`
}

type tweetList struct {
	Data []xTweet `json:"data"`
	Meta xMeta    `json:"meta"`
}

type userList struct {
	Data []xUser `json:"data"`
	Meta xMeta   `json:"meta"`
}

func (c *XClient) Me(ctx context.Context) (model.User, error) {
	var resp struct {
		Data xUser `json:"data"`
	}
	q := url.Values{"user.fields": {userFields}}
	if err := c.getJSON(ctx, "me", "/users/me", q, &resp); err != nil {
		return model.User{}, err
	}
	return resp.Data.toModel(), nil
}

func (c *XClient) HomeTimeline(ctx context.Context, userID string, maxResults int) ([]model.Post, error) {
	q := url.Values{
		"max_results":  {strconv.Itoa(clamp(maxResults, 1, 100))},
		"tweet.fields": {tweetFields},
	}
	var resp tweetList
	path := "/users/" + url.PathEscape(userID) + "/timelines/reverse_chronological"
	if err := c.getJSON(ctx, "home_timeline", path, q, &resp); err != nil {
		return nil, err
	}
	return toPosts(resp.Data), nil
}

// SearchMentions finds recent posts addressing username, excluding its own.
func (c *XClient) SearchMentions(ctx context.Context, username, sinceID string, maxResults int) ([]model.Post, error) {
	return c.search(ctx, "search_mentions", SearchQuery{
		Query:      fmt.Sprintf("@%s -from:%s", username, username),
		SinceID:    sinceID,
		MaxResults: maxResults,
	})
}

func (c *XClient) SearchRecent(ctx context.Context, sq SearchQuery) ([]model.Post, error) {
	return c.search(ctx, "search_recent", sq)
}

func (c *XClient) search(ctx context.Context, op string, sq SearchQuery) ([]model.Post, error) {
	q := url.Values{
		"query":        {sq.Query},
		"max_results":  {strconv.Itoa(clamp(sq.MaxResults, 10, 100))},
		"tweet.fields": {tweetFields},
	}
	if sq.SinceID != "" {
		q.Set("since_id", sq.SinceID)
	}
	if !sq.StartTime.IsZero() {
		q.Set("start_time", sq.StartTime.UTC().Format(time.RFC3339))
	}

	var resp tweetList
	if err := c.getJSON(ctx, op, "/tweets/search/recent", q, &resp); err != nil {
		return nil, err
	}
	return toPosts(resp.Data), nil
}

// LookupUsers resolves profiles in batches of 100. Duplicate and empty ids are
// dropped; unknown ids are silently absent from the result.
func (c *XClient) LookupUsers(ctx context.Context, ids []string) ([]model.User, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	users := make([]model.User, 0, len(unique))
	for start := 0; start < len(unique); start += maxLookupBatch {
		end := min(start+maxLookupBatch, len(unique))
		q := url.Values{
			"ids":         {strings.Join(unique[start:end], ",")},
			"user.fields": {userFields},
		}
		var resp userList
		if err := c.getJSON(ctx, "lookup_users", "/users", q, &resp); err != nil {
			return nil, err
		}
		for _, u := range resp.Data {
			users = append(users, u.toModel())
		}
	}
	return users, nil
}

// Following returns the ids userID follows, reading at most a few pages.
func (c *XClient) Following(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	token := ""
	for page := 0; page < maxFollowingPages; page++ {
		q := url.Values{"max_results": {"1000"}}
		if token != "" {
			q.Set("pagination_token", token)
		}
		var resp userList
		path := "/users/" + url.PathEscape(userID) + "/following"
		if err := c.getJSON(ctx, "following", path, q, &resp); err != nil {
			return nil, err
		}
		for _, u := range resp.Data {
			ids = append(ids, u.ID)
		}
		if resp.Meta.NextToken == "" {
			break
		}
		token = resp.Meta.NextToken
	}
	return ids, nil
}

type createTweetRequest struct {
	Text  string           `json:"text"`
	Reply *tweetReplyField `json:"reply,omitempty"`
	Media *tweetMediaField `json:"media,omitempty"`
}

type tweetReplyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetMediaField struct {
	MediaIDs []string `json:"media_ids"`
}

func (c *XClient) Post(ctx context.Context, req PostRequest) (string, error) {
	op := "post"
	body := createTweetRequest{Text: req.Text}
	if req.ReplyToID != "" {
		op = "reply"
		body.Reply = &tweetReplyField{InReplyToTweetID: req.ReplyToID}
	}
	if len(req.MediaIDs) > 0 {
		body.Media = &tweetMediaField{MediaIDs: req.MediaIDs}
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.sendJSON(ctx, op, http.MethodPost, c.baseURL+"/tweets", body, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", Transport(op, fmt.Errorf("response carried no post id"))
	}
	return resp.Data.ID, nil
}

func (c *XClient) Reply(ctx context.Context, inReplyToID, text string) (string, error) {
	return c.Post(ctx, PostRequest{Text: text, ReplyToID: inReplyToID})
}

func (c *XClient) Follow(ctx context.Context, sourceUserID, targetUserID string) error {
	body := map[string]string{"target_user_id": targetUserID}
	endpoint := c.baseURL + "/users/" + url.PathEscape(sourceUserID) + "/following"
	return c.sendJSON(ctx, "follow", http.MethodPost, endpoint, body, nil)
}

// UploadMedia sends raw image bytes as a multipart upload and returns the
// media id to attach to a post.
func (c *XClient) UploadMedia(ctx context.Context, data []byte) (string, error) {
	const op = "upload_media"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "image.png")
	if err != nil {
		return "", Transport(op, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", Transport(op, err)
	}
	if err := mw.Close(); err != nil {
		return "", Transport(op, err)
	}

	var resp struct {
		MediaIDString string `json:"media_id_string"`
		Data          struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, op, http.MethodPost, c.uploadURL, buf.Bytes(), mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}

	id := resp.MediaIDString
	if id == "" {
		id = resp.Data.ID
	}
	if id == "" {
		return "", Transport(op, fmt.Errorf("response carried no media id"))
	}
	return id, nil
}

func (c *XClient) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	return c.do(ctx, op, http.MethodGet, endpoint, nil, "", out)
}

func (c *XClient) sendJSON(ctx context.Context, op, method, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return Transport(op, fmt.Errorf("encode request: %w", err))
	}
	return c.do(ctx, op, method, endpoint, payload, "application/json", out)
}

// do executes one bounded request. Every failure leaving here is a *Error.
func (c *XClient) do(ctx context.Context, op, method, endpoint string, payload []byte, contentType string, out any) error {
	data, err := guard.Do(ctx, c.timeout, func(ctx context.Context) ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, Transport(op, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, Transport(op, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, Transport(op, fmt.Errorf("read response: %w", err))
		}
		if err := Translate(op, resp, respBody); err != nil {
			return nil, err
		}
		return respBody, nil
	})
	if err != nil {
		if _, ok := AsError(err); ok {
			return err
		}
		return Transport(op, err)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Transport(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func toPosts(tweets []xTweet) []model.Post {
	posts := make([]model.Post, 0, len(tweets))
	for _, t := range tweets {
		posts = append(posts, t.toModel())
	}
	return posts
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
