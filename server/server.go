package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejiriaustin/tiffwatch/config"
	"github.com/tejiriaustin/tiffwatch/daemon"
	"github.com/tejiriaustin/tiffwatch/db"
	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/models"
	"github.com/tejiriaustin/tiffwatch/monitoring"
)

type (
	Server struct {
		cfg    *config.Config
		server *http.Server
		logger *logger.Logger
	}
	Handler struct {
		logger *logger.Logger
	}

	snapshotResponse struct {
		Directory string             `json:"directory"`
		TakenAt   time.Time          `json:"taken_at"`
		FreeGB    float64            `json:"free_gb"`
		Count     int                `json:"count"`
		Pending   int                `json:"pending"`
		Files     []models.FileEntry `json:"files"`
	}
)

func New(cfg *config.Config, logger *logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		server: &http.Server{Addr: cfg.Port, ReadHeaderTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Start serves handler until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	s.server.Handler = handler

	errChan := make(chan error, 1)
	go func() {
		s.logger.Infow("Status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorw("Server forced to shutdown", "error", err)
		return err
	}

	s.logger.Info("Server gracefully stopped")
	return nil
}

func NewHandler(logger *logger.Logger) *Handler {
	return &Handler{logger: logger}
}

func (s *Handler) SetupHandler(source monitoring.SnapshotSource, repo db.Repository, cmdChan chan<- daemon.Command) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(s.loggerMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", s.healthCheck())
	r.GET("/snapshot", s.latestSnapshot(source))
	r.GET("/polls", s.retrievePolls(repo))
	r.POST("/poll", s.requestPoll(cmdChan))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "not found",
		})
	})

	return r
}

func (s *Handler) healthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive and well",
		})
	}
}

func (s *Handler) latestSnapshot(source monitoring.SnapshotSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := source.Latest()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot taken yet"})
			return
		}

		files := make([]models.FileEntry, 0, snap.Count())
		for _, name := range snap.Names() {
			files = append(files, snap.Files[name])
		}

		c.JSON(http.StatusOK, snapshotResponse{
			Directory: snap.Directory,
			TakenAt:   snap.TakenAt,
			FreeGB:    snap.FreeGB,
			Count:     snap.Count(),
			Pending:   snap.PendingCount(),
			Files:     files,
		})
	}
}

func (s *Handler) retrievePolls(repo db.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := parsePollQuery(c.Query("limit"), c.Query("run_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results, err := repo.GetPollResults(c.Request.Context(), filter)
		if err != nil {
			s.logger.Errorw("Failed to read poll history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func (s *Handler) requestPoll(cmdChan chan<- daemon.Command) gin.HandlerFunc {
	return func(c *gin.Context) {
		select {
		case cmdChan <- daemon.Command{Name: daemon.CommandPoll}:
			c.JSON(http.StatusAccepted, gin.H{"status": "poll requested"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "a poll is already queued"})
		}
	}
}
