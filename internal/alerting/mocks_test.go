package alerting

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
	"github.com/alertwarden/alertwarden/internal/metricsource"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// fakeClock is a manually advanced clock. After timers fire when Advance
// moves the clock past their deadline.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: at, ch: ch})
	return ch
}

// waiterCount reports how many timers are pending. Tests use it to wait
// until a worker has armed its timer before advancing the clock.
func (c *fakeClock) waiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Advance moves the clock forward and fires every timer whose deadline has
// passed.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []fakeWaiter
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(now) {
			due = append(due, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()
	for _, w := range due {
		w.ch <- now
	}
}

// mockRuleRepo is an in-memory AlertRuleRepository.
type mockRuleRepo struct {
	mu     sync.Mutex
	rules  []entities.AlertRule
	nextID uint
}

func newMockRuleRepo(rules ...entities.AlertRule) *mockRuleRepo {
	r := &mockRuleRepo{nextID: 1}
	for i := range rules {
		if rules[i].ID == 0 {
			rules[i].ID = r.nextID
		}
		if rules[i].ID >= r.nextID {
			r.nextID = rules[i].ID + 1
		}
		r.rules = append(r.rules, rules[i])
	}
	return r
}

func (m *mockRuleRepo) ListRules(_ context.Context, filter repository.AlertRuleFilter) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRule
	for i := range m.rules {
		r := m.rules[i]
		if filter.TeamID != "" && r.TeamID != filter.TeamID {
			continue
		}
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRuleRepo) GetRule(_ context.Context, id uint) (*entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			rule := m.rules[i]
			return &rule, nil
		}
	}
	return nil, repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) CreateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = m.nextID
	m.nextID++
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *mockRuleRepo) UpdateRule(_ context.Context, rule *entities.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			rule.UpdatedAt = time.Now()
			m.rules[i] = *rule
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) DeleteRule(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = slices.Delete(m.rules, i, i+1)
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) ToggleRule(_ context.Context, id uint, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules[i].Enabled = enabled
			m.rules[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrAlertRuleNotFound
}

func (m *mockRuleRepo) GetEnabledRules(_ context.Context) ([]entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRule
	for i := range m.rules {
		if m.rules[i].Enabled {
			out = append(out, m.rules[i])
		}
	}
	return out, nil
}

func (m *mockRuleRepo) CountRulesByName(_ context.Context, teamID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.rules {
		if m.rules[i].TeamID == teamID && m.rules[i].Name == name {
			count++
		}
	}
	return count, nil
}

// mockAlertRepo is an in-memory AlertRepository.
type mockAlertRepo struct {
	mu     sync.Mutex
	alerts []entities.Alert
	nextID uint
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{nextID: 1}
}

func (m *mockAlertRepo) CreateAlert(_ context.Context, alert *entities.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert.ID = m.nextID
	m.nextID++
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = alert.CreatedAt
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *mockAlertRepo) GetAlert(_ context.Context, id uint) (*entities.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			alert := m.alerts[i]
			return &alert, nil
		}
	}
	return nil, repository.ErrAlertNotFound
}

func (m *mockAlertRepo) UpdateAlert(_ context.Context, alert *entities.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == alert.ID {
			alert.UpdatedAt = time.Now()
			m.alerts[i] = *alert
			return nil
		}
	}
	return repository.ErrAlertNotFound
}

func (m *mockAlertRepo) ListAlerts(_ context.Context, filter repository.AlertFilter) ([]entities.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Alert
	for i := range m.alerts {
		a := m.alerts[i]
		if filter.TeamID != "" && a.TeamID != filter.TeamID {
			continue
		}
		if filter.RuleID != 0 && a.AlertRuleID != filter.RuleID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.Status) {
			continue
		}
		if len(filter.Severities) > 0 && !slices.Contains(filter.Severities, a.Severity) {
			continue
		}
		if !filter.From.IsZero() && a.TriggeredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && a.TriggeredAt.After(filter.To) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAlertRepo) GetOpenAlertForRule(_ context.Context, ruleID uint) (*entities.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		a := m.alerts[i]
		if a.AlertRuleID == ruleID && (a.Status == StatusActive || a.Status == StatusAcknowledged) {
			return &a, nil
		}
	}
	return nil, repository.ErrAlertNotFound
}

func (m *mockAlertRepo) CountTriggeredSince(_ context.Context, ruleID uint, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.alerts {
		if m.alerts[i].AlertRuleID == ruleID && !m.alerts[i].TriggeredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockAlertRepo) LastTriggeredAt(_ context.Context, ruleID uint) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for i := range m.alerts {
		if m.alerts[i].AlertRuleID != ruleID {
			continue
		}
		t := m.alerts[i].TriggeredAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

func (m *mockAlertRepo) CountUnresolvedForRule(_ context.Context, ruleID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.alerts {
		a := m.alerts[i]
		if a.AlertRuleID == ruleID && a.Status != StatusResolved {
			count++
		}
	}
	return count, nil
}

// mockChannelRepo is an in-memory ChannelRepository.
type mockChannelRepo struct {
	mu       sync.Mutex
	channels map[uint]entities.NotificationChannel
	policies map[uint]entities.EscalationPolicy
	links    []entities.AlertRuleChannel
	nextID   uint
}

func newMockChannelRepo() *mockChannelRepo {
	return &mockChannelRepo{
		channels: make(map[uint]entities.NotificationChannel),
		policies: make(map[uint]entities.EscalationPolicy),
		nextID:   1,
	}
}

func (m *mockChannelRepo) addChannel(ch entities.NotificationChannel) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch.ID = m.nextID
	m.nextID++
	m.channels[ch.ID] = ch
	return ch.ID
}

func (m *mockChannelRepo) addPolicy(p entities.EscalationPolicy) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID
	m.nextID++
	m.policies[p.ID] = p
	return p.ID
}

func (m *mockChannelRepo) addLink(link entities.AlertRuleChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link.ID = m.nextID
	m.nextID++
	m.links = append(m.links, link)
}

func (m *mockChannelRepo) ListChannels(_ context.Context, teamID string) ([]entities.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.NotificationChannel
	for _, ch := range m.channels {
		if ch.TeamID == teamID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *mockChannelRepo) GetChannel(_ context.Context, id uint) (*entities.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, repository.ErrChannelNotFound
	}
	return &ch, nil
}

func (m *mockChannelRepo) CreateChannel(_ context.Context, ch *entities.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch.ID = m.nextID
	m.nextID++
	m.channels[ch.ID] = *ch
	return nil
}

func (m *mockChannelRepo) UpdateChannel(_ context.Context, ch *entities.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch.ID]; !ok {
		return repository.ErrChannelNotFound
	}
	m.channels[ch.ID] = *ch
	return nil
}

func (m *mockChannelRepo) DeleteChannel(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return repository.ErrChannelNotFound
	}
	delete(m.channels, id)
	return nil
}

func (m *mockChannelRepo) ListPolicies(_ context.Context, teamID string) ([]entities.EscalationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.EscalationPolicy
	for _, p := range m.policies {
		if p.TeamID == teamID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockChannelRepo) GetPolicy(_ context.Context, id uint) (*entities.EscalationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, repository.ErrPolicyNotFound
	}
	return &p, nil
}

func (m *mockChannelRepo) CreatePolicy(_ context.Context, p *entities.EscalationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID
	m.nextID++
	m.policies[p.ID] = *p
	return nil
}

func (m *mockChannelRepo) UpdatePolicy(_ context.Context, p *entities.EscalationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.ID]; !ok {
		return repository.ErrPolicyNotFound
	}
	m.policies[p.ID] = *p
	return nil
}

func (m *mockChannelRepo) DeletePolicy(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[id]; !ok {
		return repository.ErrPolicyNotFound
	}
	delete(m.policies, id)
	return nil
}

func (m *mockChannelRepo) ListLinksForRule(_ context.Context, ruleID uint) ([]entities.AlertRuleChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AlertRuleChannel
	for i := range m.links {
		if m.links[i].AlertRuleID == ruleID {
			out = append(out, m.links[i])
		}
	}
	return out, nil
}

func (m *mockChannelRepo) CreateLink(_ context.Context, link *entities.AlertRuleChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link.ID = m.nextID
	m.nextID++
	m.links = append(m.links, *link)
	return nil
}

func (m *mockChannelRepo) DeleteLink(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.links {
		if m.links[i].ID == id {
			m.links = slices.Delete(m.links, i, i+1)
			return nil
		}
	}
	return repository.ErrLinkNotFound
}

func (m *mockChannelRepo) GetLink(_ context.Context, id uint) (*entities.AlertRuleChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.links {
		if m.links[i].ID == id {
			link := m.links[i]
			return &link, nil
		}
	}
	return nil, repository.ErrLinkNotFound
}

// scriptedSource returns one sample per fetch, holding the current value.
// Setting an error makes the next fetches fail until cleared.
type scriptedSource struct {
	mu    sync.Mutex
	value float64
	empty bool
	err   error
}

func (s *scriptedSource) set(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.empty = false
	s.err = nil
}

func (s *scriptedSource) setEmpty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.empty = true
	s.err = nil
}

func (s *scriptedSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *scriptedSource) FetchSamples(_ context.Context, _ string, _, to time.Time) ([]metricsource.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.empty {
		return nil, nil
	}
	return []metricsource.Sample{{Value: s.value, Timestamp: to}}, nil
}

// recordingDispatcher captures dispatch calls.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

type dispatchCall struct {
	alertID   uint
	channelID uint
	contact   string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, alert *entities.Alert, channel *entities.NotificationChannel, contact string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{alertID: alert.ID, channelID: channel.ID, contact: contact})
	return nil
}

func (d *recordingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *recordingDispatcher) callsSnapshot() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}
