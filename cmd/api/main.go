package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proofmeet/internal/attendance"
	"proofmeet/internal/auth"
	"proofmeet/internal/compliance"
	"proofmeet/internal/config"
	"proofmeet/internal/courtcard"
	"proofmeet/internal/fault"
	"proofmeet/internal/httpmiddleware"
	"proofmeet/internal/meeting"
	"proofmeet/internal/meetinghost"
	"proofmeet/internal/metrics"
	"proofmeet/internal/participant"
	"proofmeet/internal/queue"
	"proofmeet/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "proofmeet:cards")
	}

	host := meetinghost.New(cfg.HostAPIURL, cfg.HostAuthURL, cfg.HostClientID, cfg.HostClientSecret,
		cfg.HostAccountID, cfg.HostSkip, cfg.HostTimeout)

	participantRepo := participant.NewRepository(db.Client)
	meetingRepo := meeting.NewRepository(db.Client)
	attRepo := attendance.NewRepository(db.Client)
	cardRepo := courtcard.NewRepository(db.Client)

	meetings := meeting.NewService(meetingRepo, host)

	// The base URL check happens here, at startup. A bad VERIFY_BASE_URL
	// must never get as far as a printed QR code.
	issuer, err := courtcard.NewIssuer(cardRepo, attRepo, cfg.VerifyBaseURL)
	if err != nil {
		return err
	}
	verifier := courtcard.NewVerifier(cardRepo, attRepo)

	issueAndEnqueue := attendance.IssuerFunc(func(ctx context.Context, rec attendance.Record) error {
		card, err := issuer.Issue(ctx, rec)
		if err != nil {
			return err
		}
		metrics.CardsIssued.Inc()
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeCardIssued, Body: []byte(card.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		return nil
	})

	att := attendance.NewService(attRepo, meetingRepo, issueAndEnqueue, nil, cfg.MinAttendanceRatio)
	evaluator := compliance.NewService(participantRepo, attRepo)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Public verification: scanned by courts, no auth, rate limited.
	verifyLimiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	r.GET("/verify/:id", verifyLimiter.GinMiddleware(), func(c *gin.Context) {
		res, err := verifier.Verify(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, fault.ErrNotFound) {
				metrics.Verifications.WithLabelValues("not_found").Inc()
				c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
				return
			}
			fail(c, err)
			return
		}
		metrics.Verifications.WithLabelValues(res.Status).Inc()
		c.JSON(http.StatusOK, res)
	})

	r.POST("/v1/officers/login", func(c *gin.Context) {
		var req struct {
			OfficerID string `json:"officer_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.OfficerID, auth.RoleOfficer, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.OfficerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	v1.POST("/participants", func(c *gin.Context) {
		var req struct {
			CaseNumber       string  `json:"case_number" binding:"required"`
			Name             *string `json:"name"`
			OfficerID        string  `json:"officer_id"`
			RequiredSessions *int    `json:"required_sessions"`
			PeriodDays       *int    `json:"period_days"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.OfficerID == "" {
			req.OfficerID = claimsSubject(c)
		}
		p := participant.Participant{
			CaseNumber:       req.CaseNumber,
			Name:             req.Name,
			OfficerID:        req.OfficerID,
			RequiredSessions: cfg.DefaultRequired,
			PeriodDays:       cfg.DefaultPeriodDays,
		}
		if req.RequiredSessions != nil {
			p.RequiredSessions = *req.RequiredSessions
		}
		if req.PeriodDays != nil {
			p.PeriodDays = *req.PeriodDays
		}
		created, err := participantRepo.Create(c.Request.Context(), p)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	v1.GET("/participants", func(c *gin.Context) {
		list, err := participantRepo.List(c.Request.Context(), c.Query("officer_id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": list})
	})

	v1.GET("/participants/:id", func(c *gin.Context) {
		p, err := participantRepo.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	v1.PUT("/participants/:id/officer", func(c *gin.Context) {
		var req struct {
			OfficerID string `json:"officer_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := participantRepo.AssignOfficer(c.Request.Context(), c.Param("id"), req.OfficerID); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.PUT("/participants/:id/window", func(c *gin.Context) {
		var req struct {
			RequiredSessions int `json:"required_sessions"`
			PeriodDays       int `json:"period_days" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := participantRepo.UpdateWindow(c.Request.Context(), c.Param("id"), req.RequiredSessions, req.PeriodDays); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.POST("/meetings/test", func(c *gin.Context) {
		var req struct {
			Topic            string `json:"topic"`
			DurationMinutes  int    `json:"duration_minutes" binding:"required"`
			StartDelayMin    int    `json:"start_delay_minutes"`
			RecordingEnabled bool   `json:"recording_enabled"`
			WaitingRoom      bool   `json:"waiting_room"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		m, err := meetings.CreateTest(c.Request.Context(), meeting.TestMeetingRequest{
			Topic:            req.Topic,
			DurationMinutes:  req.DurationMinutes,
			StartDelay:       time.Duration(req.StartDelayMin) * time.Minute,
			RecordingEnabled: req.RecordingEnabled,
			WaitingRoom:      req.WaitingRoom,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"meeting":  m,
			"join_url": m.JoinURL,
			"password": m.Password,
		})
	})

	v1.GET("/meetings", func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		list, err := meetingRepo.List(c.Request.Context(), limit)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"meetings": list})
	})

	v1.POST("/meetings/:id/cancel", func(c *gin.Context) {
		if err := meetingRepo.Cancel(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.POST("/attendance/join", func(c *gin.Context) {
		var req struct {
			ParticipantID string     `json:"participant_id" binding:"required"`
			MeetingID     string     `json:"meeting_id" binding:"required"`
			JoinedAt      *time.Time `json:"joined_at"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		joinedAt := time.Time{}
		if req.JoinedAt != nil {
			joinedAt = *req.JoinedAt
		}
		rec, err := att.Open(c.Request.Context(), req.ParticipantID, req.MeetingID, joinedAt)
		if err != nil {
			fail(c, err)
			return
		}
		metrics.AttendanceOpened.Inc()
		c.JSON(http.StatusCreated, rec)
	})

	v1.POST("/attendance/:id/leave", func(c *gin.Context) {
		var req struct {
			LeftAt *time.Time `json:"left_at"`
		}
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		leftAt := time.Time{}
		if req.LeftAt != nil {
			leftAt = *req.LeftAt
		}
		rec, err := att.Close(c.Request.Context(), c.Param("id"), leftAt)
		if err != nil {
			fail(c, err)
			return
		}
		metrics.AttendanceClosed.WithLabelValues(rec.Status).Inc()
		c.JSON(http.StatusOK, rec)
	})

	v1.GET("/participants/:id/report", func(c *gin.Context) {
		asOf := time.Now().UTC()
		if v := c.Query("as_of"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be RFC3339"})
				return
			}
			asOf = parsed
		}
		snap, err := evaluator.Evaluate(c.Request.Context(), c.Param("id"), asOf)
		if err != nil {
			fail(c, err)
			return
		}
		records, err := attRepo.ListByParticipant(c.Request.Context(), c.Param("id"), 100)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"compliance": snap, "records": records})
	})

	// Recovery for closes whose synchronous issuance failed: the record is
	// COMPLETED but has no card and cannot be closed again, so the sweep
	// issues the missing cards directly from storage.
	v1.POST("/admin/cards/issue-missing", func(c *gin.Context) {
		res, err := issuer.IssueMissing(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		if res.Issued > 0 {
			metrics.CardsIssued.Add(float64(res.Issued))
			if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeBulkReissue}); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
		}
		c.JSON(http.StatusOK, res)
	})

	// The "update QR codes" remediation: reissue everything, report per-item
	// outcomes, then let the worker re-render the PNGs.
	v1.POST("/admin/cards/reissue", func(c *gin.Context) {
		res, err := issuer.ReissueAll(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeBulkReissue}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusOK, res)
	})

	r.Static("/public/qrcodes", cfg.QRCodeDir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

func fail(c *gin.Context, err error) {
	status := fault.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func claimsSubject(c *gin.Context) string {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims.Subject
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
