package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catholink/internal/attendance"
	"catholink/internal/auth"
	"catholink/internal/cloudinary"
	"catholink/internal/config"
	"catholink/internal/feedback"
	"catholink/internal/httpmiddleware"
	"catholink/internal/metrics"
	"catholink/internal/qrcard"
	"catholink/internal/queue"
	"catholink/internal/scanner"
	"catholink/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	loc := cfg.Location()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			// sql.Open only fails when the DSN itself is bad; nothing
			// downstream can run without a pool.
			return fmt.Errorf("db open failed: %w", err)
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "catholink:notifications")
	}

	repo := attendance.NewRepository(db.Client, loc)
	svc := attendance.NewService(repo, q, loc)
	ratings := feedback.NewRepository(db.Client)
	stations := scanner.NewStations()
	defer stations.StopAll()

	// Cloudinary client (nil when not configured); QR cards are then
	// served inline only.
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloud != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinarySecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloud, cfg.CloudinaryAPIKey, cfg.CloudinarySecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloud)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/scanners/register", func(c *gin.Context) {
		var req struct {
			ScannerID string `json:"scanner_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.UpsertScanner(c.Request.Context(), req.ScannerID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.ScannerID, "scanner", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.ScannerID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Stations often sit behind one school NAT, so authenticated routes
	// are limited per scanner id rather than per IP.
	authGroup := r.Group("/v1", auth.ScannerAuth(cfg.JWTSigningKey, cfg.JWTIssuer), limiter.PerScanner())

	authGroup.POST("/scans", func(c *gin.Context) {
		var req struct {
			RawText   string `json:"raw_text" binding:"required"`
			ScannedBy string `json:"scanned_by"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claimsAny, _ := c.Get("claims")
		claims, _ := claimsAny.(auth.Claims)
		scannedBy := req.ScannedBy
		if scannedBy == "" {
			scannedBy = claims.Subject
		}

		station := stations.Get(claims.Subject)
		if !station.Begin() {
			c.JSON(http.StatusConflict, gin.H{"error": "scanner busy"})
			return
		}

		res, err := svc.HandleScan(c.Request.Context(), req.RawText, scannedBy)
		station.Finish(res.ResetDelay)

		if err != nil {
			metrics.Scans.WithLabelValues("failed").Inc()
			status := http.StatusInternalServerError
			msg := "scan failed"
			switch {
			case errors.Is(err, attendance.ErrInvalidQR):
				status, msg = http.StatusBadRequest, err.Error()
			case errors.Is(err, attendance.ErrProfileNotFound):
				status, msg = http.StatusNotFound, err.Error()
			default:
				log.Printf("scan failed: %v", err)
			}
			c.JSON(status, gin.H{
				"result":         "failed",
				"error":          msg,
				"reset_delay_ms": res.ResetDelay.Milliseconds(),
			})
			return
		}

		if !res.Accepted {
			metrics.Scans.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusConflict, gin.H{
				"result":         "rejected",
				"reason":         res.Reason,
				"student":        res.Student.Name,
				"birthday":       res.Birthday,
				"reset_delay_ms": res.ResetDelay.Milliseconds(),
			})
			return
		}

		metrics.Scans.WithLabelValues("accepted").Inc()
		c.JSON(http.StatusOK, gin.H{
			"result":         "accepted",
			"status":         res.Status,
			"student":        res.Student.Name,
			"record_id":      res.Record.ID,
			"birthday":       res.Birthday,
			"reset_delay_ms": res.ResetDelay.Milliseconds(),
		})
	})

	authGroup.GET("/records", func(c *gin.Context) {
		studentID := c.Query("student_id")
		var day *time.Time
		if v := c.Query("date"); v != "" {
			parsed, err := time.ParseInLocation("2006-01-02", v, loc)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			day = &parsed
		}
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		records, err := repo.ListRecords(c.Request.Context(), studentID, day, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.POST("/students", func(c *gin.Context) {
		var req struct {
			UserID             string `json:"user_id" binding:"required"`
			Name               string `json:"name" binding:"required"`
			Email              string `json:"email"`
			Birthday           string `json:"birthday"`
			Section            string `json:"section"`
			ParentNumber       string `json:"parent_number"`
			ParentGuardianName string `json:"parent_guardian_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var birthday time.Time
		if req.Birthday != "" {
			parsed, err := time.ParseInLocation("2006-01-02", req.Birthday, loc)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "birthday must be YYYY-MM-DD"})
				return
			}
			birthday = parsed
		}
		student := attendance.Student{
			UserID:             req.UserID,
			Name:               req.Name,
			Email:              req.Email,
			Birthday:           birthday,
			Section:            req.Section,
			ParentNumber:       req.ParentNumber,
			ParentGuardianName: req.ParentGuardianName,
		}
		if err := repo.UpsertStudent(c.Request.Context(), student); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user_id": req.UserID})
	})

	authGroup.GET("/students/:id/qrcode", func(c *gin.Context) {
		student, err := repo.GetStudent(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": attendance.ErrProfileNotFound.Error()})
			return
		}

		size := 0
		if v := c.Query("size"); v != "" {
			size, _ = strconv.Atoi(v)
		}
		png, err := qrcard.PNG(*student, size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if c.Query("upload") == "1" {
			if cdnClient == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
				return
			}
			result, err := cdnClient.UploadBytes(png, student.UserID+".png")
			if err != nil {
				log.Printf("cloudinary upload failed: %v", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "public_id": result.PublicID})
			return
		}

		c.Data(http.StatusOK, "image/png", png)
	})

	authGroup.POST("/feedback", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id"`
			Stars     int    `json:"stars" binding:"required"`
			Comment   string `json:"comment"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rating, err := ratings.Insert(c.Request.Context(), feedback.Rating{
			StudentID: req.StudentID,
			Stars:     req.Stars,
			Comment:   req.Comment,
		})
		if err != nil {
			if errors.Is(err, feedback.ErrInvalidStars) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, rating)
	})

	authGroup.GET("/feedback/summary", func(c *gin.Context) {
		summary, err := ratings.Summary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

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

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
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
