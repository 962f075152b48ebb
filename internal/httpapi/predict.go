package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"caresentry/internal/predict"
	logx "caresentry/pkg/logx"
)

type predictRequest struct {
	Symptoms []string `json:"symptoms" binding:"required,min=1"`
}

// POST /api/predict
func (s *Server) handlePredict(c *gin.Context) {
	if s.predict == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction is not configured"})
		return
	}
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	res, err := s.predict.Predict(c.Request.Context(), req.Symptoms)
	if err != nil {
		s.writePredictErr(c, err)
		return
	}
	// Pass the model's body through untouched.
	c.Data(http.StatusOK, "application/json", res.Raw)
}

// GET /api/predict/symptoms
func (s *Server) handleSymptoms(c *gin.Context) {
	if s.predict == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction is not configured"})
		return
	}
	symptoms, err := s.predict.Symptoms(c.Request.Context())
	if err != nil {
		s.writePredictErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symptoms": symptoms})
}

func (s *Server) writePredictErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, predict.ErrUpstreamTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "prediction service timed out"})
	case errors.Is(err, predict.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "prediction service unavailable"})
	default:
		s.log.Error("predict proxy failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
	}
}
