// Package dashboard serves the trading journal over HTTP: a read-only
// JSON API plus a WebSocket stream that pushes the portfolio status on
// an interval. It never touches engine memory, only journal reads, so
// it can run as a separate process against the same database.
package dashboard

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the HTTP endpoints around a journal reader.
type Server struct {
	Router *gin.Engine

	reader journal.Reader
	hub    *Hub
	push   time.Duration
}

// NewServer builds the router. pushEvery paces the WebSocket status
// stream; zero means every 5 seconds.
func NewServer(reader journal.Reader, pushEvery time.Duration) *Server {
	if pushEvery <= 0 {
		pushEvery = 5 * time.Second
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		Router: r,
		reader: reader,
		hub:    NewHub(),
		push:   pushEvery,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/status", s.status)
		api.GET("/positions", s.positions)
		api.GET("/units", s.units)
		api.GET("/trades", s.trades)
		api.GET("/daily", s.daily)
		api.GET("/equity", s.equity)
		api.GET("/bars", s.bars)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)
	go s.pump(ctx)

	srv := &http.Server{Addr: addr, Handler: s.Router}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("dashboard: listening on %s", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// statusPayload is the frame pushed to every connected dashboard.
type statusPayload struct {
	Portfolio journal.PortfolioStatus `json:"portfolio"`
	Units     []journal.UnitStatus    `json:"units"`
	Positions []journal.OpenPosition  `json:"positions"`
	At        time.Time               `json:"at"`
}

func (s *Server) statusFrame() (statusPayload, error) {
	p, err := s.reader.Portfolio()
	if err != nil {
		return statusPayload{}, err
	}
	units, err := s.reader.UnitStatuses()
	if err != nil {
		return statusPayload{}, err
	}
	open, err := s.reader.OpenPositions()
	if err != nil {
		return statusPayload{}, err
	}
	return statusPayload{Portfolio: p, Units: units, Positions: open, At: time.Now()}, nil
}

// pump broadcasts the status frame on the configured interval. Nothing
// is pushed while no dashboard is connected.
func (s *Server) pump(ctx context.Context) {
	tick := time.NewTicker(s.push)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if s.hub.Clients() == 0 {
				continue
			}
			frame, err := s.statusFrame()
			if err != nil {
				log.Printf("dashboard: status frame: %v", err)
				continue
			}
			s.hub.BroadcastJSON(frame)
		}
	}
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("dashboard: ws upgrade: %v", err)
		return
	}

	// Initial frame goes out before the hub owns the connection, so
	// there is never more than one writer.
	if frame, err := s.statusFrame(); err == nil {
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return
		}
	}
	s.hub.Register(conn)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

func (s *Server) status(c *gin.Context) {
	p, err := s.reader.Portfolio()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) positions(c *gin.Context) {
	open, err := s.reader.OpenPositions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, open)
}

func (s *Server) units(c *gin.Context) {
	units, err := s.reader.UnitStatuses()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, units)
}

// trades returns closed trades, optionally bounded by ?from= and ?to=
// (inclusive days, "2006-01-02"). No bounds means the full history.
func (s *Server) trades(c *gin.Context) {
	from := market.Day(c.Query("from"))
	to := market.Day(c.Query("to"))
	trades, err := s.reader.TradesBetween(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) daily(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "30"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return
	}
	days, err := s.reader.DailySummaries(n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, days)
}

// equity returns the intraday equity curve for ?day=, defaulting to the
// book's current day.
func (s *Server) equity(c *gin.Context) {
	day := market.Day(c.Query("day"))
	if day == "" {
		if p, err := s.reader.Portfolio(); err == nil && p.Day != "" {
			day = p.Day
		} else {
			day = market.DayOf(time.Now())
		}
	}
	points, err := s.reader.EquityForDay(day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) bars(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "100"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return
	}
	bars, err := s.reader.RecentBars(n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bars)
}
