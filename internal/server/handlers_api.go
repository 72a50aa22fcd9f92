package server

import (
	"net/http"
	"time"

	"econ-empire/internal/game"

	"github.com/gin-gonic/gin"
)

type gameURI struct {
	GameID uint `uri:"gameID" binding:"required,min=1"`
}

type roundURI struct {
	GameID  uint `uri:"gameID" binding:"required,min=1"`
	RoundID uint `uri:"roundID" binding:"required,min=1"`
}

type createGameRequest struct {
	TotalRounds          int `json:"total_rounds" binding:"omitempty,min=1,max=50"`
	RoundDurationSeconds int `json:"round_duration_seconds" binding:"omitempty,min=60,max=7200"`
}

type tariffItemRequest struct {
	ProductCode   string `json:"product_code" binding:"required,refcode"`
	ToCountryCode string `json:"to_country_code" binding:"required,refcode"`
	RatePercent   *int   `json:"rate_percent" binding:"required"`
}

type tariffsRequest struct {
	Items []tariffItemRequest `json:"items" binding:"required,min=1,dive"`
}

type roundQuery struct {
	Round int `form:"round" binding:"required,min=1"`
}

type matrixQuery struct {
	Round   int    `form:"round" binding:"required,min=1"`
	Product string `form:"product" binding:"required,refcode"`
}

type chatRequest struct {
	Content   string `json:"content" binding:"required,max=5000"`
	ToCountry string `json:"to_country" binding:"omitempty,refcode"`
}

type chatQuery struct {
	Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
}

var createGameMessages = bindMessages{
	"TotalRounds":          {"min": "total_rounds must be between 1 and 50", "max": "total_rounds must be between 1 and 50"},
	"RoundDurationSeconds": {"min": "round_duration_seconds must be between 60 and 7200", "max": "round_duration_seconds must be between 60 and 7200"},
}

var tariffMessages = bindMessages{
	"Items":         {"required": "items are required", "min": "items are required"},
	"ProductCode":   {"required": "product_code is required", "refcode": "product_code is invalid"},
	"ToCountryCode": {"required": "to_country_code is required", "refcode": "to_country_code is invalid"},
	"RatePercent":   {"required": "rate_percent is required"},
}

var roundQueryMessages = bindMessages{
	"Round":   {"required": "round is required", "min": "round must be positive"},
	"Product": {"required": "product is required", "refcode": "product is invalid"},
}

var chatMessages = bindMessages{
	"Content":   {"required": "content is required", "max": "content must be 5000 characters or fewer"},
	"ToCountry": {"refcode": "to_country is invalid"},
}

func (s *Server) handleCreateGame(c *gin.Context) {
	var req createGameRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, createGameMessages, "invalid game settings") {
		return
	}
	g, rounds, err := s.sessions.CreateGame(c.Request.Context(), identityFrom(c), req.TotalRounds, req.RoundDurationSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"game": g, "rounds": rounds})
}

func (s *Server) handleState(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	status, err := s.sessions.Status(c.Request.Context(), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleStart(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	round, err := s.sessions.Start(c.Request.Context(), identityFrom(c), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": round})
}

func (s *Server) handleAdvance(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	round, err := s.sessions.Advance(c.Request.Context(), identityFrom(c), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": round})
}

func (s *Server) handleCloseRound(c *gin.Context) {
	var uri roundURI
	if !bindURI(c, &uri) {
		return
	}
	round, err := s.sessions.CloseRound(c.Request.Context(), identityFrom(c), uri.GameID, uri.RoundID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": round})
}

func (s *Server) handleEndGame(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	g, err := s.sessions.EndGame(c.Request.Context(), identityFrom(c), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": g})
}

func (s *Server) handleAssign(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	country, err := s.sessions.AssignCountry(c.Request.Context(), identityFrom(c), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"country": country})
}

func (s *Server) handleMe(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	me, err := s.sessions.Me(c.Request.Context(), identityFrom(c), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func (s *Server) handleEconomy(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	economy, err := s.sessions.Economy(c.Request.Context(), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, economy)
}

func (s *Server) handleSubmitTariffs(c *gin.Context) {
	var uri roundURI
	if !bindURI(c, &uri) {
		return
	}
	var req tariffsRequest
	if !bindJSON(c, &req, tariffMessages, "invalid tariff submission") {
		return
	}
	items := make([]game.TariffItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, game.TariffItem{
			ProductCode:   item.ProductCode,
			ToCountryCode: item.ToCountryCode,
			RatePercent:   *item.RatePercent,
		})
	}
	rates, err := s.sessions.SubmitTariffs(c.Request.Context(), identityFrom(c), uri.GameID, uri.RoundID, items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round_id": uri.RoundID, "updated": len(rates)})
}

func (s *Server) handleTariffChanges(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	var query roundQuery
	if !bindQuery(c, &query, roundQueryMessages, "invalid round") {
		return
	}
	changes, err := s.sessions.TariffChanges(c.Request.Context(), identityFrom(c), uri.GameID, query.Round)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round_number": query.Round, "changes": changes})
}

func (s *Server) handleTariffMatrix(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	var query matrixQuery
	if !bindQuery(c, &query, roundQueryMessages, "invalid matrix query") {
		return
	}
	matrix, err := s.sessions.TariffMatrix(c.Request.Context(), identityFrom(c), uri.GameID, query.Round, query.Product)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, matrix)
}

func (s *Server) handleDashboard(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	dashboard, err := s.sessions.Dashboard(c.Request.Context(), identityFrom(c), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (s *Server) handleListChat(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	var query chatQuery
	if !bindQuery(c, &query, nil, "since must be an RFC 3339 timestamp") {
		return
	}
	messages, err := s.sessions.ListChat(c.Request.Context(), uri.GameID, query.Since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handlePostChat(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	var req chatRequest
	if !bindJSON(c, &req, chatMessages, "invalid chat message") {
		return
	}
	view, err := s.sessions.PostChat(c.Request.Context(), identityFrom(c), uri.GameID, req.Content, req.ToCountry)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}
