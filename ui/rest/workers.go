package rest

import (
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/pkg/msgworker"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

type queueStat struct {
	Stream     string `json:"stream"`
	Depth      int    `json:"depth"`
	DepthHuman string `json:"depth_human"`
	Error      string `json:"error,omitempty"`
}

// WorkersHandler reports the send pool of this process and the backlog of every stream.
type WorkersHandler struct {
	pool  *msgworker.Pool
	queue QueueDepth
}

// NewWorkersHandler accepts a nil pool for processes that do not run the send workers.
func NewWorkersHandler(pool *msgworker.Pool, queue QueueDepth) *WorkersHandler {
	return &WorkersHandler{pool: pool, queue: queue}
}

func (h *WorkersHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/system/workers", h.Stats)
}

func (h *WorkersHandler) Stats(c *fiber.Ctx) error {
	out := fiber.Map{}
	if h.pool != nil {
		out["pool"] = h.pool.GetStats()
	}
	if h.queue != nil {
		queues := make([]queueStat, 0, len(jobs.Streams))
		for _, stream := range jobs.Streams {
			st := queueStat{Stream: stream}
			n, err := h.queue.Depth(c.UserContext(), stream)
			if err != nil {
				st.Error = err.Error()
			}
			st.Depth = n
			st.DepthHuman = humanize.Comma(int64(n))
			queues = append(queues, st)
		}
		out["queues"] = queues
	}
	if len(out) == 0 {
		return utils.FailWith(c, fiber.StatusServiceUnavailable, "no worker pool or queue in this process", nil)
	}
	return utils.Ok(c, "Success get worker stats", out)
}
