package session

import (
	"context"
	"sync"
	"time"

	"github.com/dmorgan81/circuitcraft/internal/controller"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/dmorgan81/circuitcraft/internal/notify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const CookieName = "circuitcraft_session"

// Session pairs a controller with the flash queue its notifications land in.
type Session struct {
	ID         string
	Controller *controller.Controller
	Flash      *notify.Flash

	lastSeen time.Time
}

// Manager owns one controller per browser session and tears down sessions
// that have been idle longer than the TTL.
type Manager struct {
	factory  *controller.Factory
	ttl      time.Duration
	schedule string
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	cron     *cron.Cron
}

func NewManager(factory *controller.Factory, ttl time.Duration, schedule string) *Manager {
	return &Manager{
		factory:  factory,
		ttl:      ttl,
		schedule: schedule,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func NewManagerFromInjector(i *do.Injector) (*Manager, error) {
	return NewManager(
		do.MustInvoke[*controller.Factory](i),
		do.MustInvokeNamed[time.Duration](i, "session_ttl"),
		do.MustInvokeNamed[string](i, "reap_schedule"),
	), nil
}

// Get returns the live session with the given id, creating a fresh one when
// id is unknown or empty.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return s
	}

	flash := &notify.Flash{}
	s := &Session{
		ID:         uuid.NewString(),
		Controller: m.factory.New(flash),
		Flash:      flash,
		lastSeen:   m.now(),
	}
	m.sessions[s.ID] = s
	log.FromContextOrDiscard(ctx).WithGroup("sessions").Info("created session", "session", s.ID, "live", len(m.sessions))
	return s
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes every session idle for longer than the TTL. Sessions with a
// submission in flight are kept until it finishes.
func (m *Manager) Reap(ctx context.Context) int {
	m.mu.Lock()
	cutoff := m.now().Add(-m.ttl)
	expired := lo.Filter(lo.Values(m.sessions), func(s *Session, _ int) bool {
		return s.lastSeen.Before(cutoff) && s.Controller.State() == controller.Idle
	})
	for _, s := range expired {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	for _, s := range expired {
		_ = s.Controller.Close()
	}
	if len(expired) > 0 {
		log.FromContextOrDiscard(ctx).WithGroup("sessions").Info("reaped idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Start schedules Reap on the configured cron schedule.
func (m *Manager) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() { m.Reap(ctx) }); err != nil {
		return err
	}
	c.Start()

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	return nil
}

// Shutdown stops the reaper and closes every session. It satisfies
// do.Shutdownable.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	m.mu.Lock()
	sessions := lo.Values(m.sessions)
	clear(m.sessions)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Controller.Close()
	}
	return nil
}
