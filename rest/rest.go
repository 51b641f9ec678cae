// Package rest exposes the swap coordinator over HTTP. Handlers translate
// between JSON payloads and orchestrator calls; all state lives behind the
// orchestrator.
package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/orchestrator"
	"github.com/seigneur/takefi-sub000/pkg/swap"
)

type Server struct {
	router       *gin.Engine
	orchestrator *orchestrator.Orchestrator
	jwtSecret    []byte
	logger       *zap.Logger
}

func NewServer(o *orchestrator.Orchestrator, jwtSecret string, logger *zap.Logger) *Server {
	childLogger := logger.With(zap.String("service", "rest"))
	s := &Server{
		router:       gin.New(),
		orchestrator: o,
		jwtSecret:    []byte(jwtSecret),
		logger:       childLogger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	s.router.GET("/health", s.health())
	s.router.POST("/create-preimage", s.createPreimage())
	s.router.GET("/swap/:swapId", s.getSwap())
	s.router.POST("/trigger-swap/:swapId", s.triggerSwap())
	s.router.GET("/order-tracking/:swapId", s.orderTracking())

	authRoutes := s.router.Group("/")
	authRoutes.Use(s.authenticate)
	{
		authRoutes.POST("/reveal-preimage/:swapId", s.revealPreimage())
	}

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	service := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		service.Shutdown(context.Background())
	}()

	s.logger.Info("listening", zap.String("addr", addr))
	if err := service.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Router exposes the handler tree for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// errorBody is the uniform error envelope of every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    swap.Code `json:"code"`
	Message string    `json:"message"`
}

// abortWithError maps a typed error onto its HTTP status; anything untyped
// becomes a 500 without leaking internals.
func (s *Server) abortWithError(c *gin.Context, err error) {
	if code, ok := swap.CodeOf(err); ok {
		c.JSON(swap.HTTPStatus(code), errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
		return
	}
	s.logger.Error("unclassified handler error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "ERR_INTERNAL", Message: "internal error"}})
}

func (s *Server) health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type createPreimageRequest struct {
	UserBtcAddress string `json:"userBtcAddress" binding:"required"`
	UserEthWallet  string `json:"userEthWallet" binding:"required"`
	MMPubkey       string `json:"mmPubkey" binding:"required"`
	UserPubkey     string `json:"userPubkey"`
	BtcAmount      int64  `json:"btcAmount" binding:"required"`
	TargetToken    string `json:"targetToken"`
	Timelock       int64  `json:"timelock"`
}

func (s *Server) createPreimage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPreimageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortWithError(c, swap.ValidationError("malformed request: %v", err))
			return
		}
		record, err := s.orchestrator.CreateSwap(c.Request.Context(), orchestrator.CreateRequest{
			UserBtcAddress: req.UserBtcAddress,
			UserEthWallet:  req.UserEthWallet,
			MMPubkey:       req.MMPubkey,
			UserPubkey:     req.UserPubkey,
			AmountSats:     req.BtcAmount,
			TargetToken:    req.TargetToken,
			Timelock:       req.Timelock,
		})
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func (s *Server) getSwap() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := s.orchestrator.GetSwap(c.Request.Context(), c.Param("swapId"))
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

type triggerSwapRequest struct {
	BtcTxHash    string `json:"btcTxHash"`
	ForceExecute bool   `json:"forceExecute"`
}

func (s *Server) triggerSwap() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req triggerSwapRequest
		// The body is optional; an empty body means a plain retry.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				s.abortWithError(c, swap.ValidationError("malformed request: %v", err))
				return
			}
		}
		record, err := s.orchestrator.TriggerSwap(c.Request.Context(), c.Param("swapId"), req.BtcTxHash, req.ForceExecute)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func (s *Server) orderTracking() gin.HandlerFunc {
	return func(c *gin.Context) {
		tracking, err := s.orchestrator.GetOrderTracking(c.Request.Context(), c.Param("swapId"))
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, tracking)
	}
}

func (s *Server) revealPreimage() gin.HandlerFunc {
	return func(c *gin.Context) {
		preimage, err := s.orchestrator.RevealPreimage(c.Request.Context(), c.Param("swapId"))
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"swapId": c.Param("swapId"), "preimage": preimage})
	}
}

// authenticate guards the privileged routes with an HS256 bearer token.
func (s *Server) authenticate(c *gin.Context) {
	tokenString := c.GetHeader("Authorization")
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
		return
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.Next()
}
