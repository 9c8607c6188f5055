package social_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/core/config"
	"github.com/banabets/else/internal/social"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
	auth   string
	ctype  string
}

var _ = Describe("XClient", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		client   *social.XClient
		mu       sync.Mutex
		requests []recorded
		handler  http.HandlerFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			requests = append(requests, recorded{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.RawQuery,
				body:   string(body),
				auth:   r.Header.Get("Authorization"),
				ctype:  r.Header.Get("Content-Type"),
			})
			mu.Unlock()
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		client = social.NewXClient(config.XConfig{
			APIKey:       "key",
			APIKeySecret: "key-secret",
			AccessToken:  "token",
			AccessSecret: "token-secret",
			BaseURL:      server.URL + "/2",
			UploadURL:    server.URL + "/upload",
		}, time.Second, server.Client())
	})

	It("signs requests with OAuth 1.0a", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"42","username":"else","name":"Else","public_metrics":{"followers_count":7}}}`))
		}

		me, err := client.Me(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(me.ID).To(Equal("42"))
		Expect(me.Username).To(Equal("else"))
		Expect(me.FollowersCount).To(Equal(7))
		Expect(requests[0].path).To(Equal("/2/users/me"))
		Expect(requests[0].auth).To(HavePrefix("OAuth "))
		Expect(requests[0].auth).To(ContainSubstring(`oauth_consumer_key="key"`))
	})

	It("decodes search results with public metrics", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"id":"1","text":"hello","author_id":"9","created_at":"2026-10-18T10:00:00Z","public_metrics":{"like_count":3,"retweet_count":1}}],"meta":{"result_count":1}}`))
		}

		start := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
		posts, err := client.SearchRecent(ctx, social.SearchQuery{Query: "emergence", StartTime: start, MaxResults: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(posts).To(HaveLen(1))
		Expect(posts[0].LikeCount).To(Equal(3))
		Expect(posts[0].RepostCount).To(Equal(1))
		Expect(posts[0].CreatedAt).To(Equal(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)))

		Expect(requests[0].path).To(Equal("/2/tweets/search/recent"))
		Expect(requests[0].query).To(ContainSubstring("max_results=10"))
		Expect(requests[0].query).To(ContainSubstring("start_time=2026-10-18T00%3A00%3A00Z"))
	})

	It("builds the mention query from the username", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
		}

		posts, err := client.SearchMentions(ctx, "else", "100", 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(posts).To(BeEmpty())
		Expect(requests[0].query).To(ContainSubstring("since_id=100"))
		Expect(requests[0].query).To(ContainSubstring("query=%40else+-from%3Aelse"))
	})

	It("sends replies with the parent id", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"id":"77","text":"hi"}}`))
		}

		id, err := client.Reply(ctx, "55", "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("77"))

		var sent map[string]any
		Expect(json.Unmarshal([]byte(requests[0].body), &sent)).To(Succeed())
		Expect(sent["text"]).To(Equal("hi"))
		Expect(sent["reply"]).To(HaveKeyWithValue("in_reply_to_tweet_id", "55"))
		Expect(sent).NotTo(HaveKey("media"))
	})

	It("attaches media ids to a post", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"78"}}`))
		}

		_, err := client.Post(ctx, social.PostRequest{Text: "look", MediaIDs: []string{"m1"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(requests[0].body).To(ContainSubstring(`"media_ids":["m1"]`))
		Expect(requests[0].body).NotTo(ContainSubstring("reply"))
	})

	It("translates a daily quota rejection into a rate-limit error", func() {
		reset := time.Now().Add(6 * time.Hour).Unix()
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("x-user-limit-24hour-remaining", "0")
			w.Header().Set("x-user-limit-24hour-reset", strconv.FormatInt(reset, 10))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"title":"Too Many Requests"}`))
		}

		_, err := client.Post(ctx, social.PostRequest{Text: "x"})
		se, ok := social.AsError(err)
		Expect(ok).To(BeTrue())
		Expect(se.Kind).To(Equal(social.KindRateLimited))
		Expect(se.Op).To(Equal("post"))
		Expect(*se.DailyRemaining).To(Equal(0))
		Expect(se.DailyResetAt.Unix()).To(Equal(reset))
	})

	It("reports forbidden follows", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}

		err := client.Follow(ctx, "1", "2")
		Expect(social.IsForbidden(err)).To(BeTrue())
		Expect(requests[0].path).To(Equal("/2/users/1/following"))
		Expect(requests[0].body).To(Equal(`{"target_user_id":"2"}`))
	})

	It("batches user lookups and drops duplicates", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			ids := strings.Split(r.URL.Query().Get("ids"), ",")
			var data []map[string]any
			for _, id := range ids {
				data = append(data, map[string]any{"id": id, "username": "u" + id})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		}

		ids := make([]string, 0, 151)
		for i := 0; i < 150; i++ {
			ids = append(ids, strconv.Itoa(i))
		}
		ids = append(ids, "0", "")

		users, err := client.LookupUsers(ctx, ids)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(150))
		Expect(requests).To(HaveLen(2))
	})

	It("follows pagination tokens for the following list", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("pagination_token") == "" {
				_, _ = w.Write([]byte(`{"data":[{"id":"a"}],"meta":{"next_token":"p2"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"id":"b"}],"meta":{}}`))
		}

		ids, err := client.Following(ctx, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"a", "b"}))
	})

	It("uploads media as multipart", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"media_id_string":"m9"}`))
		}

		id, err := client.UploadMedia(ctx, []byte("png-bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("m9"))
		Expect(requests[0].path).To(Equal("/upload"))
		Expect(requests[0].ctype).To(HavePrefix("multipart/form-data"))
		Expect(requests[0].body).To(ContainSubstring("png-bytes"))
	})

	It("turns a slow call into a tagged error", func() {
		release := make(chan struct{})
		DeferCleanup(func() { close(release) })
		handler = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}

		slow := social.NewXClient(config.XConfig{
			APIKey: "k", APIKeySecret: "s", AccessToken: "t", AccessSecret: "ts",
			BaseURL: server.URL + "/2",
		}, 30*time.Millisecond, server.Client())

		_, err := slow.Me(ctx)
		Expect(err).To(HaveOccurred())
		Expect(social.KindOf(err)).To(Equal(social.KindOther))
		_, ok := social.AsError(err)
		Expect(ok).To(BeTrue())
	})
})
