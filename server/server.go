// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes address verification flows over HTTP, one flow per
// session, and persists every verified address.
package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
	"github.com/jcodagnone/addrverify/spatial"
	"github.com/jcodagnone/addrverify/store"
	"github.com/jcodagnone/addrverify/verify"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Options configures a Server.
type Options struct {
	// SessionTTL expires idle sessions. Zero means DefaultSessionTTL.
	SessionTTL time.Duration

	// Search tunes the autocomplete of every session.
	Search verify.SearchOptions
}

type session struct {
	id       string
	flow     *verify.Flow
	lastSeen time.Time
}

// Server hosts address verification sessions.
type Server struct {
	provider verify.Provider
	repo     store.Repository
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates a server. repo may be nil, in which case verified
// addresses are only logged.
func NewServer(provider verify.Provider, repo store.Repository, opts Options) *Server {
	if provider == nil {
		provider = places.Unconfigured{}
	}

	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}

	if provider.Configured() {
		log.Println("📍 Address lookup: Google Maps")
	} else {
		log.Println("⚠️ Address lookup is not configured: GOOGLE_MAPS_API_KEY is not set")
	}

	return &Server{
		provider: provider,
		repo:     repo,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.PUT("/sessions/:id/fields", s.setField)
	api.POST("/sessions/:id/zip", s.confirmZip)
	api.DELETE("/sessions/:id/zip", s.changeZip)
	api.POST("/sessions/:id/select", s.selectPrediction)
	api.POST("/sessions/:id/verify", s.requestVerification)
	api.POST("/sessions/:id/accept", s.acceptSuggestion)
	api.POST("/sessions/:id/keep", s.keepOriginal)
	api.GET("/addresses", s.listAddresses)
	api.GET("/addresses/nearby", s.nearbyAddresses)

	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

// Close ends every session.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		sess.flow.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) persist(sessionID string, a address.StructuredAddress, method address.Method) {
	log.Printf("✅ Session %s verified %q (%s)", sessionID, a.String(), method)

	if s.repo == nil {
		return
	}

	if err := s.repo.Save(&store.Record{Address: a, Method: method, Source: sessionID}); err != nil {
		log.Printf("Saving verified address for session %s: %v", sessionID, err)
	}
}

// expireLocked closes sessions idle for longer than the TTL.
func (s *Server) expireLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.opts.SessionTTL {
			sess.flow.Close()
			delete(s.sessions, id)
		}
	}
}

// lookup returns the session named in the path, refreshing its idle timer.
func (s *Server) lookup(ctx *gin.Context) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)

	sess, ok := s.sessions[ctx.Param("id")]
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})

		return nil, false
	}

	sess.lastSeen = now

	return sess, true
}

type sessionResponse struct {
	ID string `json:"id"`
	verify.Snapshot
}

func respond(ctx *gin.Context, status int, sess *session) {
	ctx.JSON(status, sessionResponse{ID: sess.id, Snapshot: sess.flow.Snapshot()})
}

// statusFor maps flow and provider errors to HTTP status codes.
func statusFor(err error) int {
	var verr *address.ValidationError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, places.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, verify.ErrInvalidTransition),
		errors.Is(err, verify.ErrZipRequired),
		errors.Is(err, verify.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, verify.ErrClosed):
		return http.StatusGone
	case places.IsRateLimitError(err):
		return http.StatusTooManyRequests
	case places.IsQuotaExceededError(err):
		return http.StatusServiceUnavailable
	case places.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, verify.ErrResolveFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(ctx *gin.Context, err error) {
	body := gin.H{
		"error":     err.Error(),
		"retryable": places.IsRetryable(err),
	}

	var verr *address.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
		body["retryable"] = false
	}

	ctx.JSON(statusFor(err), body)
}

type createSessionRequest struct {
	ZipFirst bool `json:"zipFirst"`
}

func (s *Server) createSession(ctx *gin.Context) {
	var req createSessionRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

			return
		}
	}

	id := uuid.NewString()
	sess := &session{id: id}
	sess.flow = verify.NewFlow(s.provider, verify.FlowOptions{
		ZipFirst: req.ZipFirst,
		Search:   s.opts.Search,
		OnResolved: func(a address.StructuredAddress, method address.Method) {
			s.persist(id, a, method)
		},
	})

	s.mu.Lock()
	now := s.now()
	s.expireLocked(now)
	sess.lastSeen = now
	s.sessions[id] = sess
	s.mu.Unlock()

	respond(ctx, http.StatusCreated, sess)
}

func (s *Server) getSession(ctx *gin.Context) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	respond(ctx, http.StatusOK, sess)
}

func (s *Server) deleteSession(ctx *gin.Context) {
	s.mu.Lock()
	sess, ok := s.sessions[ctx.Param("id")]
	delete(s.sessions, ctx.Param("id"))
	s.mu.Unlock()

	if ok {
		sess.flow.Close()
	}

	ctx.Status(http.StatusNoContent)
}

type setFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

func (s *Server) setField(ctx *gin.Context) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	var req setFieldRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	field, err := address.ParseField(req.Field)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := sess.flow.SetField(field, req.Value); err != nil {
		fail(ctx, err)

		return
	}

	respond(ctx, http.StatusOK, sess)
}

type zipRequest struct {
	Zip string `json:"zip"`
}

func (s *Server) confirmZip(ctx *gin.Context) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	var req zipRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := sess.flow.ConfirmZip(ctx.Request.Context(), req.Zip); err != nil {
		fail(ctx, err)

		return
	}

	respond(ctx, http.StatusOK, sess)
}

func (s *Server) changeZip(ctx *gin.Context) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	if err := sess.flow.ChangeZip(); err != nil {
		fail(ctx, err)

		return
	}

	respond(ctx, http.StatusOK, sess)
}

type selectRequest struct {
	PredictionID string `json:"predictionId" binding:"required"`
}

func (s *Server) selectPrediction(ctx *gin.Context) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	var req selectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if _, err := sess.flow.SelectPrediction(ctx.Request.Context(), req.PredictionID); err != nil {
		fail(ctx, err)

		return
	}

	respond(ctx, http.StatusOK, sess)
}

type verificationResponse struct {
	Outcome address.Outcome `json:"outcome"`
	sessionResponse
}

func (s *Server) requestVerification(ctx *gin.Context) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	outcome, err := sess.flow.RequestVerification(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, verificationResponse{
		Outcome:         outcome,
		sessionResponse: sessionResponse{ID: sess.id, Snapshot: sess.flow.Snapshot()},
	})
}

func (s *Server) acceptSuggestion(ctx *gin.Context) {
	s.reconcile(ctx, (*verify.Flow).AcceptSuggestion)
}

func (s *Server) keepOriginal(ctx *gin.Context) {
	s.reconcile(ctx, (*verify.Flow).KeepOriginal)
}

func (s *Server) reconcile(ctx *gin.Context, decide func(*verify.Flow) (address.StructuredAddress, error)) {
	sess, ok := s.lookup(ctx)
	if !ok {
		return
	}

	if _, err := decide(sess.flow); err != nil {
		fail(ctx, err)

		return
	}

	respond(ctx, http.StatusOK, sess)
}

func (s *Server) listAddresses(ctx *gin.Context) {
	if s.repo == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "no address store configured"})

		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	records, err := s.repo.List(limit, offset)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if records == nil {
		records = []*store.Record{}
	}

	ctx.JSON(http.StatusOK, records)
}

type nearbyQuery struct {
	Lat    *float64 `form:"lat" binding:"required"`
	Lng    *float64 `form:"lng" binding:"required"`
	Radius float64  `form:"radius" binding:"required,gt=0"`
	Limit  int      `form:"limit"`
}

func (s *Server) nearbyAddresses(ctx *gin.Context) {
	if s.repo == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "no address store configured"})

		return
	}

	var q nearbyQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	center := spatial.Point{Lat: *q.Lat, Lng: *q.Lng}
	if err := center.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	matches, err := s.repo.Nearby(center, q.Radius, q.Limit)
	if errors.Is(err, store.ErrRadiusTooLarge) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, matches)
}
