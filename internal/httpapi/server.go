// Package httpapi serves the REST surface: accounts, schedules, prescriptions
// and the prediction proxy.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caresentry/internal/auth"
	"caresentry/internal/notify"
	"caresentry/internal/predict"
	"caresentry/internal/scheduler"
	"caresentry/internal/storage"
	logx "caresentry/pkg/logx"
)

// Store is the slice of the persistence layer the handlers need.
// *storage.Store satisfies it; tests substitute fakes.
type Store interface {
	CreateUser(ctx context.Context, u *storage.User) error
	UserByUsername(ctx context.Context, username string) (*storage.User, error)
	UserByID(ctx context.Context, id string) (*storage.User, error)

	SchedulesByOwner(ctx context.Context, owner string) ([]storage.Schedule, error)

	CreatePrescription(ctx context.Context, p *storage.Prescription) error
	PrescriptionsByUser(ctx context.Context, userID string) ([]storage.Prescription, error)
	UpdatePrescriptionMedications(ctx context.Context, id, userID string, meds []storage.Medication) (*storage.Prescription, error)
	DeletePrescription(ctx context.Context, id, userID string) error
}

// Scheduler is what the schedule endpoints need from the coordinator.
type Scheduler interface {
	CreateAndStart(ctx context.Context, req scheduler.CreateRequest) ([]storage.Schedule, error)
	Delete(ctx context.Context, id string) error
}

// Predictor is the disease-model client surface.
type Predictor interface {
	Predict(ctx context.Context, symptoms []string) (*predict.Result, error)
	Symptoms(ctx context.Context) ([]string, error)
}

type Options struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	SecureCookies bool
}

type Server struct {
	opts     Options
	log      logx.Logger
	store    Store
	sched    Scheduler
	notifier notify.Notifier
	authmgr  *auth.Manager
	predict  Predictor

	srv *http.Server
}

func NewServer(opts Options, store Store, sched Scheduler, notifier notify.Notifier,
	authmgr *auth.Manager, pred Predictor, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	return &Server{
		opts:     opts,
		log:      log,
		store:    store,
		sched:    sched,
		notifier: notifier,
		authmgr:  authmgr,
		predict:  pred,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	users := api.Group("/users")
	users.POST("/register", s.handleRegister)
	users.POST("/login", s.handleLogin)
	users.POST("/logout", s.handleLogout)
	users.GET("/me", s.requireAuth(), s.handleMe)

	schedules := api.Group("/schedules")
	schedules.POST("", s.optionalAuth(), s.handleCreateSchedules)
	schedules.GET("", s.requireAuth(), s.handleListSchedules)
	schedules.DELETE("/:id", s.handleDeleteSchedule)

	rx := api.Group("/prescriptions", s.requireAuth())
	rx.POST("", s.handleCreatePrescription)
	rx.GET("", s.handleListPrescriptions)
	rx.PUT("/:id", s.handleUpdatePrescription)
	rx.DELETE("/:id", s.handleDeletePrescription)

	api.POST("/predict", s.handlePredict)
	api.GET("/predict/symptoms", s.handleSymptoms)

	return r
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.opts.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests within the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}
