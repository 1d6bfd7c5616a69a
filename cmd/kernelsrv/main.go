// Command kernelsrv exposes the execution kernel over HTTP: POST
// /executions submits a config/input pair and runs it to completion;
// GET /executions/:id/events upgrades to a websocket and streams that
// execution's scoped event feed live. This is the network realization of
// spec.md §6's observable event surface, and a host for the optional
// "Worker boundary" the spec describes for out-of-process callers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flowkit/kernel/internal/config"
	"github.com/flowkit/kernel/kernel"
	"github.com/flowkit/kernel/kernel/atomic"
	"github.com/flowkit/kernel/kernel/bus"
	"github.com/flowkit/kernel/kernel/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type server struct {
	runtime *kernel.Runtime
	logger  zerolog.Logger
}

type submitRequest struct {
	Config kernel.ExecutorConfig `json:"config"`
	Input  any                   `json:"input"`
}

func main() {
	opts, err := config.Load(os.Getenv("KERNEL_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(parseLevel(opts.LogLevel))

	b := bus.New()
	_, _ = bus.NewLogSubscriber(b, logger)

	if opts.TracingEnabled {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()
		_, _ = bus.NewOTelBridge(b, tp.Tracer("kernelsrv"))
	}

	if opts.MetricsEnabled {
		kernel.AttachMetrics(b, kernel.NewMetrics(nil))
	}

	factory := kernel.NewFactory()
	atomic.RegisterAll(factory, &model.MockChatModel{Responses: []string{"ok"}}, atomic.NewToolRegistry())

	srv := &server{runtime: kernel.NewRuntime(factory, b), logger: logger}

	router := gin.Default()
	router.POST("/executions", srv.handleSubmit)
	router.GET("/executions/:id/events", srv.handleEvents)

	addr := os.Getenv("KERNEL_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if err := router.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func (s *server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.runtime.Execute(c.Request.Context(), req.Config, req.Input, kernel.RunOptions{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleEvents upgrades to a websocket and forwards every bus event
// scoped to :id, each as a {"type": "event", "event": ...} frame. No
// result, error, execute or cancel frames are sent or read on this socket.
func (s *server) handleEvents(c *gin.Context) {
	executionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	unsub := s.runtime.OnExecutionEvent(executionID, bus.Wildcard, func(e bus.Event) {
		if err := conn.WriteJSON(gin.H{"type": "event", "event": e}); err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer unsub()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
