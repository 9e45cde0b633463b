// Package api provides the REST API server for bbs1ctl
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/james-see/bbs1ctl/pkg/device"
	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title bbs1ctl API
// @version 1.0
// @description API for reading and exporting Peterson BodyBeat Sync tempo maps
// @host localhost:8080
// @BasePath /api/v1

// OpenFunc opens the transport to the device
type OpenFunc func() (device.Transport, error)

// Server serves device operations over HTTP. Device access is serialized:
// one exchange with the BBS-1 runs at a time.
type Server struct {
	open        OpenFunc
	sessionOpts []device.Option
	decodeOpts  []tempo.DecodeOption
	logger      *zap.Logger

	mu      sync.Mutex
	session *device.Session
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSessionOptions sets the options of every device session
func WithSessionOptions(opts ...device.Option) Option {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithDecodeOptions sets the options used to decode uploaded dumps
func WithDecodeOptions(opts ...tempo.DecodeOption) Option {
	return func(s *Server) {
		s.decodeOpts = append(s.decodeOpts, opts...)
	}
}

// New creates a server that reaches the device through open
func New(open OpenFunc, opts ...Option) *Server {
	s := &Server{
		open:   open,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessionOpts = append(s.sessionOpts, device.WithLogger(s.logger))
	s.decodeOpts = append(s.decodeOpts, tempo.WithLogger(s.logger))
	return s
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/device", s.handleDeviceInfo)
		v1.GET("/tempomaps", s.handleTempoMaps)
		v1.GET("/tempomaps/midi", s.handleTempoMapsMIDI)
		v1.GET("/tempomaps/syx", s.handleTempoMapsDump)
		v1.DELETE("/tempomaps", s.handleDeleteTempoMaps)
		v1.POST("/decode", s.handleDecode)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Run serves on addr until the listener fails
func (s *Server) Run(addr string) error {
	defer s.Close()
	return s.Router().Run(addr)
}

// Close releases the device session
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropSession()
}

// StartServer starts the API server on the specified port
func StartServer(port string, open OpenFunc, opts ...Option) error {
	return New(open, opts...).Run(":" + port)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// withSession runs fn holding the device lock. A session that failed at the
// transport level is dropped so the next request reopens the ports.
func (s *Server) withSession(fn func(*device.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		tr, err := s.open()
		if err != nil {
			return err
		}
		s.session = device.NewSession(tr, s.sessionOpts...)
	}

	err := fn(s.session)
	if errors.Is(err, device.ErrDisconnected) || errors.Is(err, device.ErrClosed) {
		s.logger.Warn("dropping device session", zap.Error(err))
		_ = s.dropSession()
	}
	return err
}

func (s *Server) dropSession() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "bbs1ctl",
	})
}

// handleDeviceInfo godoc
// @Summary Device information
// @Description Checks the connection and reads mode and versions
// @Tags device
// @Produce json
// @Success 200 {object} device.Info
// @Failure 503 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /device [get]
func (s *Server) handleDeviceInfo(c *gin.Context) {
	var info *device.Info
	err := s.withSession(func(sess *device.Session) error {
		var err error
		info, err = sess.Info(c.Request.Context())
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) fetch(ctx context.Context) (*tempo.File, [][]byte, error) {
	var f *tempo.File
	var frames [][]byte
	err := s.withSession(func(sess *device.Session) error {
		var err error
		f, frames, err = sess.FetchTempoMaps(ctx)
		return err
	})
	return f, frames, err
}

// handleTempoMaps godoc
// @Summary Read tempo maps
// @Description Downloads every tempo map from the device
// @Tags tempomaps
// @Produce json
// @Success 200 {object} FileView
// @Failure 422 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /tempomaps [get]
func (s *Server) handleTempoMaps(c *gin.Context) {
	f, _, err := s.fetch(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, NewFileView(f))
}

// handleTempoMapsMIDI godoc
// @Summary Export tempo maps as MIDI
// @Description Downloads every tempo map and renders it as a Standard MIDI File
// @Tags tempomaps
// @Produce application/octet-stream
// @Success 200 {file} binary
// @Failure 503 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /tempomaps/midi [get]
func (s *Server) handleTempoMapsMIDI(c *gin.Context) {
	f, _, err := s.fetch(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.sendMIDI(c, f, "tempomaps.mid")
}

// handleTempoMapsDump godoc
// @Summary Download the raw dump
// @Description Downloads every tempo map page frame as a .syx file
// @Tags tempomaps
// @Produce application/octet-stream
// @Success 200 {file} binary
// @Failure 503 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /tempomaps/syx [get]
func (s *Server) handleTempoMapsDump(c *gin.Context) {
	_, frames, err := s.fetch(c.Request.Context())
	if err != nil && frames == nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := device.WriteDump(&buf, frames); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=tempomaps.syx")
	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}

// handleDeleteTempoMaps godoc
// @Summary Delete tempo maps
// @Description Erases every tempo map on the device
// @Tags tempomaps
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /tempomaps [delete]
func (s *Server) handleDeleteTempoMaps(c *gin.Context) {
	err := s.withSession(func(sess *device.Session) error {
		return sess.DeleteTempoMaps(c.Request.Context())
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleDecode godoc
// @Summary Decode a dump
// @Description Upload a .syx dump or raw tempo map stream and receive its tempo maps
// @Tags convert
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Dump to decode"
// @Param format query string false "json (default) or midi"
// @Success 200 {object} FileView
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /decode [post]
func (s *Server) handleDecode(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	f, err := device.LoadTempoFile(data, s.decodeOpts...)
	if err != nil {
		s.fail(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, NewFileView(f))
	case "midi":
		name := strings.TrimSuffix(header.Filename, ".syx")
		if name == "" {
			name = "tempomaps"
		}
		s.sendMIDI(c, f, name+".mid")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format"})
	}
}

func (s *Server) sendMIDI(c *gin.Context, f *tempo.File, filename string) {
	data, err := tempo.ExportMIDI(f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "audio/midi", data)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, device.ErrNotFound), errors.Is(err, device.ErrDisconnected),
		errors.Is(err, device.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, device.ErrRejected), errors.Is(err, device.ErrUnexpectedAnswer),
		errors.Is(err, device.ErrTooManyPages):
		return http.StatusBadGateway
	case errors.Is(err, device.ErrNotDump):
		return http.StatusBadRequest
	case errors.Is(err, sysex.ErrInvalidFraming), errors.Is(err, sysex.ErrWrongManufacturer),
		errors.Is(err, sysex.ErrWrongDevice), errors.Is(err, tempo.ErrNotTempoMapData),
		errors.Is(err, tempo.ErrUnknownVersion), errors.Is(err, tempo.ErrMapCountOutOfRange),
		errors.Is(err, tempo.ErrCountInOutOfRange), errors.Is(err, tempo.ErrTruncated),
		errors.Is(err, tempo.ErrPageOrder):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
