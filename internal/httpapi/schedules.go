package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caresentry/internal/notify"
	"caresentry/internal/scheduler"
	"caresentry/internal/storage"
	logx "caresentry/pkg/logx"
)

const connectMessage = "✅ CareSentry connected! Your medicine reminders are set."

type createSchedulesRequest struct {
	ChatID    string              `json:"chatId" binding:"required"`
	Schedules []scheduleItemInput `json:"schedules" binding:"required,min=1"`
}

type scheduleItemInput struct {
	Medicine string `json:"medicine"`
	Time     string `json:"time" binding:"required"`
	Duration int    `json:"duration"`
}

type scheduleJSON struct {
	ID            string    `json:"id"`
	Medicine      string    `json:"medicine"`
	Time          string    `json:"time"`
	RemainingRuns int       `json:"remainingRuns"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toScheduleJSON(sc storage.Schedule) scheduleJSON {
	return scheduleJSON{
		ID:            sc.ID,
		Medicine:      sc.Subject,
		Time:          sc.TimeOfDay,
		RemainingRuns: sc.RemainingRuns,
		Active:        sc.Active,
		CreatedAt:     sc.CreatedAt,
	}
}

// POST /api/schedules
//
// Order matters: validate, probe the channel with a connect message, then
// persist and arm. A bad chat id is caught before anything is written.
func (s *Server) handleCreateSchedules(c *gin.Context) {
	var req createSchedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	create := scheduler.CreateRequest{
		ChannelID: req.ChatID,
		Owner:     userID(c),
	}
	for _, it := range req.Schedules {
		create.Items = append(create.Items, scheduler.CreateItem{
			Subject:      it.Medicine,
			TimeOfDay:    it.Time,
			DurationDays: it.Duration,
		})
	}
	if err := scheduler.ValidateCreate(&create); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.notifier.Send(c.Request.Context(), create.ChannelID, connectMessage); err != nil {
		if errors.Is(err, notify.ErrInvalidChannel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat not reachable; check the chat id"})
			return
		}
		s.log.Warn("channel probe failed", logx.String("channel", create.ChannelID), logx.Err(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach the messaging service"})
		return
	}

	created, err := s.sched.CreateAndStart(c.Request.Context(), create)
	if err != nil {
		if errors.Is(err, scheduler.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.Error("schedule create failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create schedules"})
		return
	}

	// Per-item confirmations are best-effort; the schedules are already armed.
	for _, sc := range created {
		text := fmt.Sprintf("⏰ Reminder set for %s at %s daily.", sc.Subject, sc.TimeOfDay)
		if err := s.notifier.Send(c.Request.Context(), sc.ChannelID, text); err != nil {
			s.log.Debug("confirmation send failed", logx.String("id", sc.ID), logx.Err(err))
		}
	}

	out := make([]scheduleJSON, 0, len(created))
	for _, sc := range created {
		out = append(out, toScheduleJSON(sc))
	}
	c.JSON(http.StatusCreated, gin.H{"schedules": out})
}

// GET /api/schedules
func (s *Server) handleListSchedules(c *gin.Context) {
	list, err := s.store.SchedulesByOwner(c.Request.Context(), userID(c))
	if err != nil {
		s.log.Error("schedule list failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list schedules"})
		return
	}
	out := make([]scheduleJSON, 0, len(list))
	for _, sc := range list {
		out = append(out, toScheduleJSON(sc))
	}
	c.JSON(http.StatusOK, gin.H{"schedules": out})
}

// DELETE /api/schedules/:id
func (s *Server) handleDeleteSchedule(c *gin.Context) {
	id := c.Param("id")
	if err := s.sched.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
			return
		}
		s.log.Error("schedule delete failed", logx.String("id", id), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete schedule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
