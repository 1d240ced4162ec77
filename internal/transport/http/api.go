package http

import (
	"net/http"
	"strconv"
	"time"

	"edugame-service/internal/app"
	"edugame-service/internal/domain"
	"edugame-service/internal/logger"
	"edugame-service/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the REST API and the chat websocket.
type Server struct {
	auth     *app.AuthService
	tokens   TokenParser
	results  *app.ResultService
	agg      *app.Aggregator
	students *app.StudentService
	chat     *WSHandler
	hub      *app.Hub
	logger   *zap.Logger
	metrics  *metrics.Metrics
	origins  []string
}

// Deps collects the services the HTTP layer dispatches to.
type Deps struct {
	Auth     *app.AuthService
	Results  *app.ResultService
	Agg      *app.Aggregator
	Students *app.StudentService
	Hub      *app.Hub
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	// AllowedOrigins limits browser origins; empty allows any.
	AllowedOrigins []string
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Server{
		auth:     d.Auth,
		tokens:   d.Auth,
		results:  d.Results,
		agg:      d.Agg,
		students: d.Students,
		chat:     NewWSHandler(d.Hub, d.Logger, d.AllowedOrigins),
		hub:      d.Hub,
		logger:   d.Logger,
		metrics:  d.Metrics,
		origins:  d.AllowedOrigins,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(s.logger, s.metrics), s.cors())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	auth := r.Group("/auth")
	auth.POST("/student/signup", s.signup)
	auth.POST("/student/login", s.studentLogin)
	auth.POST("/admin/login", s.adminLogin)

	r.GET("/leaderboard", s.OptionalIdentity(), s.leaderboard)

	student := r.Group("/student", s.RequireIdentity(domain.RoleStudent))
	student.GET("/achievement", s.achievement)
	student.GET("/streak", s.streak)
	student.GET("/profile", s.profile)
	student.POST("/update-profile", s.updateProfile)
	student.GET("/chart-data", s.chartData)
	student.GET("/completed/:modality", s.completedGames)

	games := r.Group("/games/:modality", s.RequireIdentity(domain.RoleStudent))
	games.POST("/submit", s.submit)
	games.GET("/:game_id/status", s.status)
	games.GET("/:game_id/result", s.result)

	community := r.Group("/community", s.RequireIdentity())
	community.GET("/user", s.communityUser)
	community.GET("/messages", s.messages)

	r.GET("/ws/chat", s.RequireIdentity(), s.chat.Serve)
	return r
}

func (s *Server) cors() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        10 * time.Minute,
	}
	if len(s.origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func (s *Server) signup(c *gin.Context) {
	var req app.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.ErrInvalidInput)
		return
	}
	if err := s.auth.SignupStudent(c.Request.Context(), req); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "signup successful"})
}

func (s *Server) studentLogin(c *gin.Context) {
	var req app.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.ErrInvalidInput)
		return
	}
	session, err := s.auth.LoginStudent(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) adminLogin(c *gin.Context) {
	var req app.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.ErrInvalidInput)
		return
	}
	session, err := s.auth.LoginAdmin(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) leaderboard(c *gin.Context) {
	board, err := s.agg.Leaderboard(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (s *Server) achievement(c *gin.Context) {
	achievement, err := s.agg.Achievement(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, achievement)
}

func (s *Server) streak(c *gin.Context) {
	streak, err := s.students.Streak(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streak": streak})
}

func (s *Server) profile(c *gin.Context) {
	profile, err := s.students.Profile(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req domain.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.ErrInvalidInput)
		return
	}
	if err := s.students.UpdateProfile(c.Request.Context(), identityFrom(c), req); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) chartData(c *gin.Context) {
	counts, err := s.students.ChartData(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

type submitRequest struct {
	GameID int64 `json:"game_id"`
	Score  int   `json:"score"`
}

func (s *Server) submit(c *gin.Context) {
	modality, err := domain.ParseModality(c.Param("modality"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.ErrInvalidInput)
		return
	}
	result, err := s.results.Submit(c.Request.Context(), identityFrom(c), modality, req.GameID, req.Score)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) status(c *gin.Context) {
	modality, gameID, ok := s.gameParams(c)
	if !ok {
		return
	}
	completed, err := s.results.Completed(c.Request.Context(), identityFrom(c), modality, gameID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": completed})
}

func (s *Server) result(c *gin.Context) {
	modality, gameID, ok := s.gameParams(c)
	if !ok {
		return
	}
	result, err := s.results.Result(c.Request.Context(), identityFrom(c), modality, gameID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) completedGames(c *gin.Context) {
	modality, err := domain.ParseModality(c.Param("modality"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ids, err := s.results.CompletedGames(c.Request.Context(), identityFrom(c), modality)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": ids})
}

func (s *Server) communityUser(c *gin.Context) {
	c.JSON(http.StatusOK, identityFrom(c))
}

func (s *Server) messages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, domain.ErrInvalidInput)
			return
		}
		limit = n
	}
	msgs, err := s.hub.History(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) gameParams(c *gin.Context) (domain.Modality, int64, bool) {
	modality, err := domain.ParseModality(c.Param("modality"))
	if err != nil {
		s.fail(c, err)
		return "", 0, false
	}
	gameID, err := strconv.ParseInt(c.Param("game_id"), 10, 64)
	if err != nil || gameID <= 0 {
		s.fail(c, domain.ErrInvalidInput)
		return "", 0, false
	}
	return modality, gameID, true
}
