package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

// Defaults of Publisher.
const (
	DefaultInterval  = 5 * time.Second
	DefaultTopicRoot = "AutoBloomer"
)

// Sender delivers one message. Queue is the broker backed Sender.
type Sender interface {
	Publish(topic string, payload []byte) error
}

// SenderFunc is func type of Sender.
type SenderFunc func(topic string, payload []byte) error

// Publish implements Sender.
func (f SenderFunc) Publish(topic string, payload []byte) error {
	return f(topic, payload)
}

// Publisher periodically publishes the freshest snapshot, one message
// per sensor on <TopicRoot>/<location>/<name>.
type Publisher struct {
	Source    telemetry.Source
	Sender    Sender
	Interval  time.Duration
	TopicRoot string

	published uint64
	failed    uint64
	last      sensor.Snapshot
	hasLast   bool

	offline   atomic.Bool
	republish atomic.Bool
}

// NewPublisher creates a Publisher.
func NewPublisher(src telemetry.Source, sender Sender) *Publisher {
	return &Publisher{
		Source:    src,
		Sender:    sender,
		Interval:  DefaultInterval,
		TopicRoot: DefaultTopicRoot,
	}
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PublishLatest()
		}
	}
}

// SetOnline tells whether the broker is reachable. Nothing is sent
// while offline. Going online republishes the last snapshot on the
// next tick even if nothing newer arrived.
func (p *Publisher) SetOnline(online bool) {
	if online {
		p.republish.Store(true)
	}
	p.offline.Store(!online)
}

// Watch follows the connection state of q. Call it before connecting.
func (p *Publisher) Watch(q *Queue) {
	p.SetOnline(q.Client.IsConnected())
	q.OnConnect = func(*Queue) { p.SetOnline(true) }
	q.OnDisconnect = func(*Queue) { p.SetOnline(false) }
}

// PublishLatest drains the source and publishes the latest snapshot.
// It reports whether a snapshot was published.
func (p *Publisher) PublishLatest() bool {
	s, fresh := p.Source.DrainToLatest()
	if fresh {
		p.last, p.hasLast = s, true
	}
	if p.offline.Load() || !p.hasLast {
		return false
	}
	if !p.republish.Swap(false) && !fresh {
		return false
	}
	p.PublishSnapshot(p.last)
	return true
}

// PublishSnapshot publishes every entry. Failures are logged and the
// remaining entries are still published.
func (p *Publisher) PublishSnapshot(s sensor.Snapshot) {
	for n := range s.Entries {
		entry := &s.Entries[n]
		payload, err := Payload(entry)
		if err != nil {
			glog.Warningf("mqtt: encode %s: %v", entry.Name, err)
			continue
		}
		topic := p.Topic(entry)
		if err = p.Sender.Publish(topic, payload); err != nil {
			if p.failed == 0 {
				glog.Warningf("mqtt: publish %s: %v", topic, err)
			} else {
				glog.V(2).Infof("mqtt: publish %s: %v", topic, err)
			}
			p.failed++
			continue
		}
		if p.failed > 0 {
			glog.Infof("mqtt: publishing recovered after %d failures", p.failed)
			p.failed = 0
		}
		p.published++
	}
}

// Published returns the number of messages delivered.
func (p *Publisher) Published() uint64 {
	return p.published
}

// Topic returns the topic of a sensor.
func (p *Publisher) Topic(e *sensor.Entry) string {
	root := p.TopicRoot
	if root == "" {
		root = DefaultTopicRoot
	}
	return root + "/" + e.Location + "/" + e.Name
}

// Payload encodes an entry as a JSON object holding the status string
// and formatted reading fields. Sensors without valid data report
// zero readings.
func Payload(e *sensor.Entry) ([]byte, error) {
	fields := map[string]string{"status": e.Status.String()}
	values := e.Values()
	at := func(n int) sensor.Value {
		if n < len(values) {
			return values[n]
		}
		return sensor.Value{}
	}
	switch e.Kind {
	case sensor.KindSonar:
		fields["Feed level"] = fmt.Sprintf("%d", at(0).Int)
	case sensor.KindPod:
		fields["CO2 level"] = fmt.Sprintf("%.2fppm", at(0).Float)
		fields["Temperature"] = fmt.Sprintf("%.2fC", at(1).Float)
		fields["RH"] = fmt.Sprintf("%.2f%%", at(2).Float)
		fields["Soil moisture"] = fmt.Sprintf("%d", at(3).Int)
	case sensor.KindBattery:
		fields["Battery level"] = fmt.Sprintf("%.2fv", at(0).Float)
	default:
		return nil, fmt.Errorf("unknown sensor kind %v", e.Kind)
	}
	return json.Marshal(fields)
}
