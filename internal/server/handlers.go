package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

const defaultListLimit = 50

type createRequest struct {
	Goal    string          `json:"goal"`
	Profile *agents.Profile `json:"profile,omitempty"`
}

type logEntryView struct {
	Sequence    int64     `json:"sequence"`
	Event       string    `json:"event"`
	PhaseBefore string    `json:"phaseBefore,omitempty"`
	PhaseAfter  string    `json:"phaseAfter"`
	ConceptID   string    `json:"conceptId,omitempty"`
	Content     string    `json:"content,omitempty"`
	Score       *int      `json:"score,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createSession confirms a goal for a new session under a generated key.
func (s *Server) createSession(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, badRequest("invalid body: %v", err))
		return
	}
	out, err := s.sessions.Dispatch(c.Request.Context(), uuid.NewString(), tutor.Command{
		Event:   tutor.EventGoalConfirmed,
		Payload: tutor.Payload{Goal: req.Goal, Profile: req.Profile},
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) dispatch(c *gin.Context) {
	var cmd tutor.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		s.respondError(c, badRequest("invalid body: %v", err))
		return
	}
	if cmd.Event == "" {
		s.respondError(c, badRequest("event is required"))
		return
	}
	out, err := s.sessions.Dispatch(c.Request.Context(), c.Param("key"), cmd)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSession(c *gin.Context) {
	out, err := s.sessions.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), c.Param("key")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listSessions(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	sums, err := s.sessions.List(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sums})
}

func (s *Server) sessionLog(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	after, err := intQuery(c, "after", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	entries, err := s.sessions.Log(c.Request.Context(), c.Param("key"), store.QueryOpts{Limit: limit, After: int64(after)})
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]logEntryView, len(entries))
	for i, e := range entries {
		out[i] = logEntryView{
			Sequence:    e.Sequence,
			Event:       e.Event,
			PhaseBefore: e.PhaseBefore,
			PhaseAfter:  e.PhaseAfter,
			ConceptID:   e.ConceptID,
			Content:     e.Content,
			Score:       e.Score,
			Timestamp:   e.Timestamp,
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessionKey": c.Param("key"), "entries": out})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}
