package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Alert is the outcome of observing one security event.
type Alert struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// Alerter counts audited events per source IP and flags bursts.
type Alerter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewAlerter returns nil when client is nil; a nil Alerter observes nothing.
func NewAlerter(client redis.UniversalClient, prefix string) *Alerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "sinapsis:report:alerts"
	}
	return &Alerter{client: client, prefix: prefix, now: time.Now}
}

// Observe records an event and reports whether its rule threshold is reached
// within the current window.
func (a *Alerter) Observe(ctx context.Context, event, outcome, ip string) (Alert, error) {
	if a == nil {
		return Alert{}, nil
	}
	threshold, window, ok := ruleFor(event, outcome)
	if !ok {
		return Alert{}, nil
	}
	windowMs := window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return Alert{}, err
	}
	return Alert{Triggered: count >= threshold, Count: count, Threshold: threshold, Window: window}, nil
}

func ruleFor(event, outcome string) (int64, time.Duration, bool) {
	event = strings.TrimSpace(event)
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return 20, time.Minute, true
	case "fail":
	default:
		return 0, 0, false
	}
	switch event {
	case "report.login":
		return 10, 5 * time.Minute, true
	case "report.authorize":
		return 25, 5 * time.Minute, true
	case "report.publish", "report.delete":
		return 15, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
