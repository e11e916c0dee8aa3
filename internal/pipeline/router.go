package pipeline

import (
	"sync/atomic"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
)

// ChannelKind names a delivery surface.
type ChannelKind string

const (
	ChannelDesktop     ChannelKind = "desktop"
	ChannelSlackDM     ChannelKind = "slack_dm"
	ChannelSlackThread ChannelKind = "slack_thread"
)

// DeliveryChannel is a closed union over the three delivery surfaces. Each
// variant carries exactly the fields it needs; the sealed marker keeps the
// set exhaustive so the dispatcher's switch cannot silently miss a kind.
type DeliveryChannel interface {
	Kind() ChannelKind
	sealed()
}

// Desktop routes a notification to the in-app dashboard.
type Desktop struct {
	Priority bus.Priority
}

// SlackDM routes a notification to the resolved assignee's Slack DMs.
type SlackDM struct {
	TargetUser string
	Priority   bus.Priority
}

// SlackThread routes a low-priority heads-up back into the originating
// conversation thread.
type SlackThread struct {
	ChannelID string
	ThreadTS  string
	Priority  bus.Priority
}

func (Desktop) Kind() ChannelKind     { return ChannelDesktop }
func (SlackDM) Kind() ChannelKind     { return ChannelSlackDM }
func (SlackThread) Kind() ChannelKind { return ChannelSlackThread }

func (Desktop) sealed()     {}
func (SlackDM) sealed()     {}
func (SlackThread) sealed() {}

// Router maps a task's assignee, urgency and origin to an ordered channel
// list. Pure and deterministic given the same inputs and flags; the flags
// are atomic so config hot-reload can flip them under live traffic.
type Router struct {
	desktopEnabled atomic.Bool
	slackEnabled   atomic.Bool
}

// NewRouter creates a router with the given delivery flags.
func NewRouter(desktopEnabled, slackEnabled bool) *Router {
	r := &Router{}
	r.desktopEnabled.Store(desktopEnabled)
	r.slackEnabled.Store(slackEnabled)
	return r
}

// SetDeliveryFlags updates the delivery toggles (config hot-reload).
func (r *Router) SetDeliveryFlags(desktop, slack bool) {
	r.desktopEnabled.Store(desktop)
	r.slackEnabled.Store(slack)
}

// Route applies the routing rules in order. The rules are not mutually
// exclusive; one task can fan out to all three surfaces. An empty list for
// an unassigned low-urgency task with desktop delivery off is a legitimate
// outcome, not a bug.
func (r *Router) Route(assignee, urgency string, mc MessageContext) []DeliveryChannel {
	prio := bus.PriorityNormal
	if urgency == UrgencyHigh {
		prio = bus.PriorityHigh
	}

	var channels []DeliveryChannel

	if r.desktopEnabled.Load() {
		channels = append(channels, Desktop{Priority: prio})
	}

	if r.slackEnabled.Load() {
		if assignee != "" {
			channels = append(channels, SlackDM{TargetUser: assignee, Priority: prio})
		}
		// Keep the originating conversation informed, but stay quiet on
		// low-urgency items.
		if urgency != UrgencyLow {
			channels = append(channels, SlackThread{
				ChannelID: mc.ChannelID,
				ThreadTS:  mc.MessageTS,
				Priority:  bus.PriorityLow,
			})
		}
	}

	return channels
}
