package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-bouncer/app/tasks"
)

func NewHandler(feeds []string, store StateReader, sweeper SweepReporter,
	scheduler tasks.SchedulerInterface, version string) *Handler {
	return &Handler{
		feeds:     feeds,
		store:     store,
		sweeper:   sweeper,
		scheduler: scheduler,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"feeds":     len(h.feeds),
	}

	if last := h.sweeper.LastResult(); last != nil {
		health["last_sweep"] = map[string]interface{}{
			"id":           last.ID,
			"started_at":   last.StartedAt,
			"finished_at":  last.FinishedAt,
			"filed":        last.Filed,
			"failed_feeds": last.FailedFeeds,
			"cancelled":    last.Cancelled,
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds := make([]map[string]interface{}, 0, len(h.feeds))

	for _, url := range h.feeds {
		feedInfo := map[string]interface{}{
			"url":             url,
			"last_pub_date":   nil,
			"last_processed":  nil,
			"processed_count": 0,
		}

		state, err := h.store.FeedState(c.Request.Context(), url)
		if err != nil {
			slog.Error("State store error", "operation", "get_feed_state", "feed", url, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "State store error"})
			return
		}
		if state != nil {
			feedInfo["last_pub_date"] = state.LastPubDate
			feedInfo["last_processed"] = state.LastProcessed
			feedInfo["processed_count"] = state.ProcessedCount
		}

		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIGetLastSweep(c *gin.Context) {
	last := h.sweeper.LastResult()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sweep has finished yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

func (h *Handler) APITriggerSweep(c *gin.Context) {
	if err := h.scheduler.EnqueueSweep(); err != nil {
		slog.Warn("Error enqueueing sweep", "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Failed to enqueue sweep",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Sweep enqueued",
	})
}
