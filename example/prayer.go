package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aadithya-v/qibla/prayer"
)

type nextPrayerRequest struct {
	Date     string                 `json:"date" binding:"required"` // 2006-01-02
	Timezone string                 `json:"timezone"`
	Times    map[prayer.Name]string `json:"times" binding:"required"`
	Tomorrow map[prayer.Name]string `json:"tomorrow"`
}

// nextPrayer reports the next prayer and the time left until it, given the
// day's timings as returned by a prayer-times API.
func (h *handlers) nextPrayer(c *gin.Context) {
	var req nextPrayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
			return
		}
		loc = l
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}

	today, err := prayer.ParseSchedule(date, req.Times)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var tomorrow *prayer.Schedule
	if len(req.Tomorrow) > 0 {
		next, err := prayer.ParseSchedule(date.AddDate(0, 0, 1), req.Tomorrow)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tomorrow = &next
	}

	tick, err := prayer.NewCountdown(h.clock, today, tomorrow).Current()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prayer":            tick.Prayer.Name,
		"at":                tick.Prayer.At,
		"remaining_seconds": int64(tick.Remaining / time.Second),
	})
}
