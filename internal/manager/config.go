package manager

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultIdleTimeout   = 240 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	MaxQueueDepth int
	MaxWait       time.Duration
	IdleTimeout   time.Duration
	Publisher     EventPublisher
	Logger        *zerolog.Logger
}

// New constructs a Manager for svc. Initialize is not called until Start.
func New(svc Service, cfg Config) *Manager {
	m := &Manager{
		svc:       svc,
		state:     StateLoading,
		publisher: noopPublisher{},
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.IdleTimeout <= 0 {
		m.idleTimeout = defaultIdleTimeout
	} else {
		m.idleTimeout = cfg.IdleTimeout
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	}
	if cfg.Logger != nil {
		m.logger = cfg.Logger.With().Str("service", svc.Name()).Logger()
	}
	m.genCh = make(chan struct{}, 1)
	m.queueCh = make(chan struct{}, m.maxQueueDepth)
	m.startTime = m.now()
	m.lastUsed = m.startTime
	return m
}
