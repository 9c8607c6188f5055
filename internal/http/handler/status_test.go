package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/banabets/else/internal/http/handler"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/quota"
	"github.com/banabets/else/internal/status"
)

func sampleReport() status.Report {
	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := model.NewCycle(7, started)
	c.Mark(model.StepPost, model.StepResultOK)
	c.Outcome = model.OutcomeCompleted
	c.Strategy = model.StrategyQuestion
	c.PostIDs = []string{"1850000000000000001"}
	c.FinishedAt = started.Add(time.Minute)
	return status.Report{
		Cycle:              *c,
		Quota:              quota.Quota{State: quota.StateOk},
		ObservationCounter: 2,
		ReportedAt:         c.FinishedAt,
	}
}

var _ = Describe("StatusHandler", func() {
	var (
		router *gin.Engine
		board  *status.Board
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		board = status.NewBoard()
	})

	Describe("Get", func() {
		BeforeEach(func() {
			h := handler.NewStatusHandler(board, nil, "")
			router.GET("/status", h.Get)
		})

		It("reports starting before the first cycle", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["status"]).To(Equal("starting"))
			Expect(resp).NotTo(HaveKey("last_cycle"))
		})

		It("returns the latest cycle report", func() {
			board.Update(sampleReport())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["status"]).To(Equal("running"))
			Expect(resp["cycles"]).To(BeNumerically("==", 1))
			Expect(resp["observation_counter"]).To(BeNumerically("==", 2))

			last := resp["last_cycle"].(map[string]any)
			Expect(last["id"]).To(Equal("7"))
			Expect(last["outcome"]).To(Equal("completed"))
			Expect(last["duration_ms"]).To(BeNumerically("==", 60000))
			Expect(resp["quota"]).To(HaveKeyWithValue("state", "ok"))
		})
	})

	Describe("Stream", func() {
		It("is unavailable without redis", func() {
			h := handler.NewStatusHandler(board, nil, "")
			router.GET("/status/stream", h.Stream)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/stream", nil))

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("relays published reports as server-sent events", func() {
			mr, err := miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(mr.Close)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			DeferCleanup(client.Close)

			pub := status.NewRedisPublisher(client, "else:cycle-status", 100)
			Expect(pub.Publish(context.Background(), sampleReport())).To(Succeed())

			h := handler.NewStatusHandler(board, client, "else:cycle-status").WithBlock(50 * time.Millisecond)
			router.GET("/status/stream", h.Stream)
			srv := httptest.NewServer(router)
			DeferCleanup(srv.Close)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream?last_id=0", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

			scanner := bufio.NewScanner(resp.Body)
			var events []string
			var data string
			for scanner.Scan() {
				line := scanner.Text()
				if ev, ok := strings.CutPrefix(line, "event: "); ok {
					events = append(events, ev)
				}
				if d, ok := strings.CutPrefix(line, "data: "); ok && len(events) > 0 && events[len(events)-1] == "status" {
					data = d
					break
				}
			}

			Expect(events).To(Equal([]string{"ping", "status"}))

			var ev struct {
				EntryID string        `json:"entry_id"`
				Report  status.Report `json:"report"`
			}
			Expect(json.Unmarshal([]byte(data), &ev)).To(Succeed())
			Expect(ev.EntryID).NotTo(BeEmpty())
			Expect(ev.Report.Cycle.ID).To(Equal(int64(7)))
			Expect(ev.Report.Cycle.PostIDs).To(Equal([]string{"1850000000000000001"}))
		})
	})
})
