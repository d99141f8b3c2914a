package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestThresholdLevel(t *testing.T) {
	tests := []struct {
		ratio     float64
		threshold float64
		crossed   bool
	}{
		{0.50, 0, false},
		{0.69, 0, false},
		{0.70, 0.70, true},
		{0.72, 0.70, true},
		{0.80, 0.80, true},
		{0.81, 0.80, true},
		{0.90, 0.90, true},
		{0.94, 0.90, true},
		{0.95, 0.95, true},
		{1.20, 0.95, true},
	}

	for _, tt := range tests {
		threshold, crossed := ThresholdLevel(tt.ratio)
		if crossed != tt.crossed || threshold != tt.threshold {
			t.Errorf("ThresholdLevel(%v) = (%v, %v), expected (%v, %v)",
				tt.ratio, threshold, crossed, tt.threshold, tt.crossed)
		}
	}
}

// fakeChannel записывает вызовы Send и опционально возвращает ошибку
type fakeChannel struct {
	name         string
	minThreshold float64
	sendErr      error
	sent         []Alert
}

func (c *fakeChannel) Name() string          { return c.name }
func (c *fakeChannel) MinThreshold() float64 { return c.minThreshold }
func (c *fakeChannel) Configured() bool      { return true }
func (c *fakeChannel) Send(_ context.Context, alert Alert) error {
	c.sent = append(c.sent, alert)
	return c.sendErr
}

func newTestManager(cooldown time.Duration, channels ...Channel) *Manager {
	return NewManager(cooldown, channels, zap.NewNop())
}

func TestCheckAndAlertEscalation(t *testing.T) {
	push := &fakeChannel{name: "push", minThreshold: 0.70}
	m := newTestManager(time.Hour, push)

	// ratio последовательность: ниже порога, два раза 0.72, затем 0.81.
	// Ожидание: один алерт на пороге 0.70 и один на 0.80; повторный
	// 0.72 глушится cooldown'ом.
	sequence := []float64{0.60, 0.72, 0.72, 0.81}
	var triggered []float64
	for _, ratio := range sequence {
		r := m.CheckAndAlert(context.Background(), "acc-1", "main", ratio, 5000)
		if len(r.AlertsSent) > 0 {
			triggered = append(triggered, r.ThresholdTriggered)
		}
	}

	if len(push.sent) != 2 {
		t.Fatalf("expected 2 alerts sent, got %d", len(push.sent))
	}
	if triggered[0] != 0.70 || triggered[1] != 0.80 {
		t.Errorf("triggered thresholds = %v, expected [0.70 0.80]", triggered)
	}
}

func TestCheckAndAlertStateResetsOnDrop(t *testing.T) {
	push := &fakeChannel{name: "push", minThreshold: 0.70}
	m := newTestManager(time.Nanosecond, push)

	// маржа поднялась, упала ниже порога, поднялась снова:
	// оба подъёма должны алертить
	for _, ratio := range []float64{0.75, 0.50, 0.75} {
		m.CheckAndAlert(context.Background(), "acc-1", "main", ratio, 5000)
		time.Sleep(time.Millisecond) // даём cooldown истечь
	}

	if len(push.sent) != 2 {
		t.Errorf("expected 2 alerts after drop and re-cross, got %d", len(push.sent))
	}
}

func TestCheckAndAlertCooldown(t *testing.T) {
	push := &fakeChannel{name: "push", minThreshold: 0.70}
	m := newTestManager(time.Hour, push)

	first := m.CheckAndAlert(context.Background(), "acc-1", "main", 0.75, 5000)
	second := m.CheckAndAlert(context.Background(), "acc-1", "main", 0.75, 5000)

	if first.CooldownActive {
		t.Error("first alert should not be in cooldown")
	}
	if !second.CooldownActive {
		t.Error("second alert within cooldown should report CooldownActive")
	}
	if len(push.sent) != 1 {
		t.Errorf("expected 1 alert, got %d", len(push.sent))
	}
}

func TestCheckAndAlertTiers(t *testing.T) {
	push := &fakeChannel{name: "push", minThreshold: 0.70}
	sms := &fakeChannel{name: "sms", minThreshold: 0.80}
	call := &fakeChannel{name: "call", minThreshold: 0.90}
	m := newTestManager(time.Hour, push, sms, call)

	r := m.CheckAndAlert(context.Background(), "acc-1", "main", 0.82, 5000)

	if len(push.sent) != 1 || len(sms.sent) != 1 {
		t.Errorf("push/sms should fire at 0.82: push=%d sms=%d", len(push.sent), len(sms.sent))
	}
	if len(call.sent) != 0 {
		t.Errorf("call should not fire at 0.82, got %d", len(call.sent))
	}
	if len(r.AlertsSent) != 2 {
		t.Errorf("AlertsSent = %v, expected 2 channels", r.AlertsSent)
	}
}

func TestCheckAndAlertChannelFailureIsolation(t *testing.T) {
	failing := &fakeChannel{name: "push", minThreshold: 0.70, sendErr: errors.New("api down")}
	working := &fakeChannel{name: "sms", minThreshold: 0.70}
	m := newTestManager(time.Hour, failing, working)

	r := m.CheckAndAlert(context.Background(), "acc-1", "main", 0.75, 5000)

	if len(working.sent) != 1 {
		t.Error("working channel should receive alert despite sibling failure")
	}
	if len(r.AlertsSent) != 1 || r.AlertsSent[0] != "sms" {
		t.Errorf("AlertsSent = %v, expected [sms]", r.AlertsSent)
	}

	// частичная доставка помечает порог отправленным - повторный
	// вызов внутри cooldown молчит
	r2 := m.CheckAndAlert(context.Background(), "acc-1", "main", 0.75, 5000)
	if !r2.CooldownActive {
		t.Error("threshold should be marked sent even with a failed channel")
	}
}

func TestCheckAndAlertAccountsIndependent(t *testing.T) {
	push := &fakeChannel{name: "push", minThreshold: 0.70}
	m := newTestManager(time.Hour, push)

	m.CheckAndAlert(context.Background(), "acc-1", "first", 0.75, 5000)
	m.CheckAndAlert(context.Background(), "acc-2", "second", 0.75, 3000)

	if len(push.sent) != 2 {
		t.Errorf("cooldown must be per account, got %d alerts", len(push.sent))
	}
}

func TestAlertStateCanSend(t *testing.T) {
	state := NewAlertState(30 * time.Minute)
	now := time.Now()

	if !state.CanSend("acc-1", 0.70, now) {
		t.Error("fresh state should allow send")
	}

	state.MarkSent("acc-1", 0.70, now)

	if state.CanSend("acc-1", 0.70, now.Add(10*time.Minute)) {
		t.Error("send within cooldown should be blocked")
	}
	if !state.CanSend("acc-1", 0.70, now.Add(31*time.Minute)) {
		t.Error("send after cooldown should be allowed")
	}
	if !state.CanSend("acc-1", 0.80, now) {
		t.Error("other thresholds are independent")
	}

	state.ResetBelow("acc-1", 0.65)
	if !state.CanSend("acc-1", 0.70, now) {
		t.Error("reset should re-arm the threshold")
	}
}
