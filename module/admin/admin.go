package admin

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PPulse/logger"
	"PPulse/middleware"
	"PPulse/module/event"
	"PPulse/module/fanout"
	"PPulse/module/presence"
	"PPulse/module/purge"
	"PPulse/tools/errs"
)

// Purger runs cascading deletion.
type Purger interface {
	DeleteUser(ctx context.Context, userID string) (purge.Report, error)
	DeleteConversation(ctx context.Context, convID string) (purge.Report, error)
}

// Presencer reads the reconciled presence view.
type Presencer interface {
	GetPresence(ctx context.Context, userID string) (presence.Record, error)
}

// Deliverer runs one fan-out pass for a raw event.
type Deliverer interface {
	Deliver(ctx context.Context, ev *event.Event) (fanout.Report, error)
}

// Publisher emits notifications onto the event bus. Optional.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Ready reports whether backing stores are usable.
type Ready func() bool

type Server struct {
	purger   Purger
	presence Presencer
	deliver  Deliverer
	pub      Publisher
	ready    Ready
}

func NewServer(p Purger, pr Presencer, d Deliverer, pub Publisher, ready Ready) *Server {
	return &Server{purger: p, presence: pr, deliver: d, pub: pub, ready: ready}
}

// Router builds the admin HTTP surface.
func (s *Server) Router(token string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog())

	r.GET("/healthz", s.healthz)

	grp := r.Group("/admin", middleware.AdminToken(token))
	grp.POST("/purge/:kind/:id", s.purge)
	grp.GET("/presence/:user", s.getPresence)
	grp.POST("/deliver", s.postDeliver)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	if s.ready != nil && !s.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) purge(c *gin.Context) {
	kind := c.Param("kind")
	id := c.Param("id")

	var (
		rep purge.Report
		err error
	)
	switch kind {
	case "user":
		rep, err = s.purger.DeleteUser(c.Request.Context(), id)
	case "conversation":
		rep, err = s.purger.DeleteConversation(c.Request.Context(), id)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown purge kind: " + kind})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if rep.Partial {
		// partial purge is re-runnable, signal the caller to retry
		status = http.StatusAccepted
	} else if s.pub != nil {
		// other consumers drop cached references to the purged entity
		if perr := s.pub.PublishJSON("im.entity.purged", gin.H{"kind": kind, "id": id}); perr != nil {
			logger.Warn("publish purge notice", zap.String("id", id), zap.Error(perr))
		}
	}
	c.JSON(status, rep)
}

func (s *Server) getPresence(c *gin.Context) {
	rec, err := s.presence.GetPresence(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user"), "record": rec})
}

func (s *Server) postDeliver(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}
	ev, err := event.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rep, err := s.deliver.Deliver(c.Request.Context(), ev)
	if err != nil {
		if errs.IsPrecondition(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}
