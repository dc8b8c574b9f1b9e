package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spigell/job-radar/internal/filtering"
	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/pipeline"
	"github.com/spigell/job-radar/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type StateReporter interface {
	State() pipeline.State
}

type CycleReader interface {
	Latest(ctx context.Context) (*jobs.CycleRecord, error)
}

type Deps struct {
	State    StateReporter
	Cycles   CycleReader
	Filters  []filtering.Filter
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Version  string
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"state":   deps.State.State(),
			"version": deps.Version,
		})
	})

	r.GET("/filters", func(c *gin.Context) {
		c.JSON(http.StatusOK, filtering.Describe(deps.Filters))
	})

	r.GET("/cycles/latest", func(c *gin.Context) {
		rec, err := deps.Cycles.Latest(c.Request.Context())
		switch {
		case errors.Is(err, store.ErrNoCycles):
			c.JSON(http.StatusNotFound, gin.H{"error": "no cycle finished yet"})
		case err != nil:
			deps.Logger.Warn("reading latest cycle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, rec)
		}
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

// Serve runs the status server until ctx is done.
func Serve(ctx context.Context, addr string, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
