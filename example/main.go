package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aadithya-v/qibla"
	"github.com/aadithya-v/qibla/store"
)

func main() {
	cfg := loadConfig()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(cfg.LogLevel)

	finderCfg := qibla.Config{
		DatabasePath:      cfg.DBPath,
		GeoIPDatabasePath: cfg.GeoIPPath,
		Logger:            &logger,
	}

	// Production backends are opt-in; SQLite and the memory cache are the defaults.
	if cfg.MySQLDSN != "" {
		mysqlStore, err := store.NewMySQLFromDSN(cfg.MySQLDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MySQL")
		}
		finderCfg.SessionStore = mysqlStore
	}
	if cfg.RedisAddr != "" {
		redisCache, err := store.NewRedisFromConfig(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		finderCfg.BearingCache = redisCache
	}

	finder, err := qibla.New(finderCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize finder")
	}
	defer finder.Close()

	gin.SetMode(gin.ReleaseMode)
	r := newRouter(&handlers{finder: finder, clock: clock.New(), logger: logger})

	logger.Info().Str("addr", cfg.Addr).Msg("qibla example server listening")
	if err := r.Run(cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

type handlers struct {
	finder *qibla.Finder
	clock  clock.Clock
	logger zerolog.Logger
}

func newRouter(h *handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.POST("/qibla", h.lookup)
	r.GET("/qibla/history", h.history)
	r.GET("/qibla/compass", h.compass)
	r.POST("/prayer/next", h.nextPrayer)
	return r
}

// lookup computes the bearing for a one-off request. Coordinates come from
// the lat/lng query parameters, falling back to GeoIP.
func (h *handlers) lookup(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	device := qibla.ExtractDeviceInfo(c.Request)
	loc, err := h.locationFor(c, device)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.finder.Begin(c.Request.Context(), userID, device, loc, qibla.UnsupportedSensor{})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, qibla.ErrLocationUnavailable) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	defer session.Close()

	c.JSON(http.StatusOK, gin.H{
		"session_id":  session.ID,
		"device":      session.Device,
		"target":      session.Target,
		"bearing":     session.Bearing(),
		"distance_km": session.DistanceKM,
	})
}

func (h *handlers) history(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.finder.History(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"sessions": records,
		"count":    len(records),
	})
}

// locationFor prefers client-reported coordinates and falls back to GeoIP.
func (h *handlers) locationFor(c *gin.Context, device qibla.DeviceInfo) (qibla.LocationProvider, error) {
	latRaw, lngRaw := c.Query("lat"), c.Query("lng")
	if latRaw == "" && lngRaw == "" {
		return h.finder.LocateIP(device.IP), nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, errors.New("invalid lng")
	}
	return qibla.FirstLocation(
		qibla.StaticLocation{Latitude: lat, Longitude: lng},
		h.finder.LocateIP(device.IP),
	), nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
