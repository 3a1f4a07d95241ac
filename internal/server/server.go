// =============================
// Control Surface
// =============================
// HTTP API for operating the simulator: start and stop markets, publish
// news, inspect the book and watch the live event feed over a websocket.
// This surface is for test operators, not trading traffic; orders arrive
// through the gateway sessions.

package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market"
	"github.com/Aidin1998/venuesim/internal/market/directory"
	"github.com/Aidin1998/venuesim/internal/market/gateway"
	"github.com/Aidin1998/venuesim/internal/market/instruments"
	"github.com/Aidin1998/venuesim/internal/market/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server is the control-surface HTTP server.
type Server struct {
	mgr    *market.Manager
	log    *zap.Logger
	engine *gin.Engine
}

// New builds the server and its routes.
func New(mgr *market.Manager, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))

	s := &Server{mgr: mgr, log: log, engine: r}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/markets", s.listMarkets)
	r.POST("/markets", s.startMarket)
	r.DELETE("/markets/:name", s.stopMarket)
	r.POST("/markets/:name/news", s.publishNews)
	r.POST("/markets/:name/sessions/reset", s.resetSessionBehavior)
	r.GET("/markets/:name/instruments", s.listInstruments)
	r.GET("/markets/:name/orders", s.listOrders)
	r.GET("/markets/:name/trades", s.listTrades)
	r.GET("/markets/:name/feed", s.streamFeed)

	return s
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

type marketSummary struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	OpenOrders int       `json:"open_orders"`
	StartedAt  time.Time `json:"started_at"`
}

func (s *Server) listMarkets(c *gin.Context) {
	out := []marketSummary{}
	for _, m := range s.mgr.List() {
		out = append(out, marketSummary{
			Name:       m.Name,
			Type:       m.Type,
			OpenOrders: m.Book().CountOpen(),
			StartedAt:  m.StartedAt(),
		})
	}
	c.JSON(http.StatusOK, out)
}

type startMarketRequest struct {
	Name           string                    `json:"name" binding:"required"`
	Type           string                    `json:"type" binding:"required,oneof=equity derivatives"`
	SweepInterval  string                    `json:"sweep_interval"`
	Parties        []directory.PartyRecord   `json:"parties" binding:"required,dive"`
	OrderEntry     []directory.AccountRecord `json:"order_entry" binding:"required,dive"`
	DropCopy       []directory.AccountRecord `json:"drop_copy" binding:"omitempty,dive"`
	PostTrade      []directory.AccountRecord `json:"post_trade" binding:"omitempty,dive"`
	InstrumentFile string                    `json:"instrument_file"`
}

func (s *Server) startMarket(c *gin.Context) {
	var req startMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var interval time.Duration
	if req.SweepInterval != "" {
		d, err := time.ParseDuration(req.SweepInterval)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sweep_interval"})
			return
		}
		interval = d
	}

	var table *instruments.Table
	if req.InstrumentFile != "" {
		t, err := instruments.LoadCSV(req.InstrumentFile)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		table = t
	}

	opts := market.Options{
		Name:          req.Name,
		Type:          req.Type,
		SweepInterval: interval,
		Parties:       req.Parties,
		Instruments:   table,
		Gateways: gateway.Gateways{
			OrderEntry: gateway.NewMemorySession(req.OrderEntry),
			DropCopy:   gateway.NewMemorySession(req.DropCopy),
			PostTrade:  gateway.NewMemorySession(req.PostTrade),
		},
	}
	m, err := s.mgr.StartMarket(opts)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, marketSummary{Name: m.Name, Type: m.Type, StartedAt: m.StartedAt()})
}

func (s *Server) stopMarket(c *gin.Context) {
	if err := s.mgr.StopMarket(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) publishNews(c *gin.Context) {
	m, ok := s.mgr.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not running"})
		return
	}
	var news model.News
	if err := c.ShouldBindJSON(&news); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.Ruler().PublishNews(&news)
	c.Status(http.StatusAccepted)
}

type resetSessionRequest struct {
	Gateway string           `json:"gateway" binding:"required,oneof=order-entry drop-copy post-trade"`
	Account string           `json:"account" binding:"required"`
	Patch   gateway.Behavior `json:"patch"`
}

// resetSessionBehavior patches a session's transport behavior, most often to
// override its outgoing sequence number for recovery tests.
func (s *Server) resetSessionBehavior(c *gin.Context) {
	m, ok := s.mgr.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not running"})
		return
	}
	var req resetSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := m.Gateway(req.Gateway)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "gateway not configured"})
		return
	}
	if err := sess.ModifyBehavior(req.Account, req.Patch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type instrumentView struct {
	Symbol         string `json:"symbol"`
	ExchangeCode   string `json:"exchange_code"`
	SourceExchange string `json:"source_exchange"`
	SecurityType   string `json:"security_type"`
}

func (s *Server) listInstruments(c *gin.Context) {
	m, ok := s.mgr.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not running"})
		return
	}
	out := []instrumentView{}
	if t := m.Instruments(); t != nil {
		for _, in := range t.All() {
			out = append(out, instrumentView{
				Symbol:         in.Symbol,
				ExchangeCode:   in.ExchangeCode,
				SourceExchange: in.SourceExchange,
				SecurityType:   in.SecurityType,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

type orderView struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	SecurityID    string `json:"security_id"`
	Account       string `json:"account"`
	Side          int    `json:"side"`
	Type          int    `json:"type"`
	Status        string `json:"status"`
	Quantity      string `json:"quantity"`
	Leaves        string `json:"leaves"`
	LimitPrice    string `json:"limit_price"`
}

func (s *Server) listOrders(c *gin.Context) {
	m, ok := s.mgr.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not running"})
		return
	}
	out := []orderView{}
	for _, o := range m.Book().Filter(func(*model.Order) bool { return true }) {
		out = append(out, orderView{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			SecurityID:    o.SecurityID,
			Account:       o.Account,
			Side:          int(o.Side),
			Type:          int(o.Type),
			Status:        o.Status,
			Quantity:      o.Quantity.String(),
			Leaves:        o.LeavesQuantity.String(),
			LimitPrice:    o.LimitPrice.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

type tradeView struct {
	TradeID string `json:"trade_id"`
	LinkID  string `json:"link_id"`
	Status  string `json:"status"`
}

func (s *Server) listTrades(c *gin.Context) {
	m, ok := s.mgr.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not running"})
		return
	}
	out := []tradeView{}
	for _, rec := range m.Trades().All() {
		out = append(out, tradeView{TradeID: rec.TradeID, LinkID: rec.LinkID, Status: rec.Status})
	}
	c.JSON(http.StatusOK, out)
}

// streamFeed upgrades to a websocket and relays the market's event feed.
func (s *Server) streamFeed(c *gin.Context) {
	m, ok := s.mgr.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not running"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := m.Hub().Subscribe()
	defer cancel()

	// The read loop only watches for the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
