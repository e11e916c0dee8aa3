package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
)

// DeliveryData is the notification payload shared by every channel of one
// task; each dispatcher projects the fields its surface needs.
type DeliveryData struct {
	TaskID          string
	Assignee        string
	TaskSummary     string
	Urgency         string
	Recommendations map[string]any
}

// Dispatcher fans a task notification out to its routed channels. Channels
// are mutually independent, so they are dispatched concurrently through a
// bounded worker pool; results land in index slots so the returned slice
// preserves the routed channel order. Each dispatch runs inside its own
// failure boundary: a panicking or failing channel becomes one failed
// DeliveryOutcome and never disturbs its siblings.
type Dispatcher struct {
	pub     bus.Publisher
	workers int
}

// NewDispatcher creates a dispatcher publishing on pub with at most workers
// concurrent dispatches per message (minimum 1).
func NewDispatcher(pub bus.Publisher, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{pub: pub, workers: workers}
}

// Dispatch attempts every channel and returns one outcome per channel, in
// channel order. It never returns an error: partial failure is data.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []DeliveryChannel, data DeliveryData) []bus.DeliveryOutcome {
	results := make([]bus.DeliveryOutcome, len(channels))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.workers)
	for i, ch := range channels {
		wg.Add(1)
		sem <- struct{}{}
		go func(slot int, ch DeliveryChannel) {
			defer wg.Done()
			defer func() { <-sem }()
			results[slot] = d.dispatchOne(ctx, ch, data)
		}(i, ch)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ch DeliveryChannel, data DeliveryData) (out bus.DeliveryOutcome) {
	out = bus.DeliveryOutcome{
		Channel:   string(ch.Kind()),
		Timestamp: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Error = fmt.Sprintf("dispatch panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Error = err.Error()
		return out
	}

	var err error
	switch c := ch.(type) {
	case Desktop:
		err = d.pub.PublishDesktopDelivery(bus.DesktopDelivery{
			TaskID:          data.TaskID,
			Assignee:        data.Assignee,
			TaskSummary:     data.TaskSummary,
			Urgency:         data.Urgency,
			Recommendations: data.Recommendations,
			Priority:        c.Priority,
		})
	case SlackDM:
		out.Target = c.TargetUser
		err = d.pub.PublishSlackDM(bus.SlackDMDelivery{
			TaskID:          data.TaskID,
			Assignee:        data.Assignee,
			TargetUser:      c.TargetUser,
			TaskSummary:     data.TaskSummary,
			Urgency:         data.Urgency,
			Recommendations: data.Recommendations,
			Priority:        c.Priority,
		})
	case SlackThread:
		out.Target = c.ChannelID
		err = d.pub.PublishSlackThread(bus.SlackThreadDelivery{
			TaskID:          data.TaskID,
			ChannelID:       c.ChannelID,
			ThreadTS:        c.ThreadTS,
			TaskSummary:     data.TaskSummary,
			Recommendations: data.Recommendations,
			Priority:        c.Priority,
		})
	default:
		err = fmt.Errorf("unknown delivery channel kind %q", ch.Kind())
	}

	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Success = true
	out.MessageID = data.TaskID + "_" + string(ch.Kind())
	return out
}
