package pipeline

import (
	"testing"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
)

func TestRouterRoute(t *testing.T) {
	mc := MessageContext{ChannelID: "C01", MessageTS: "1712345678.000100"}

	tests := []struct {
		name     string
		desktop  bool
		slack    bool
		assignee string
		urgency  string
		want     []DeliveryChannel
	}{
		{
			name:    "high urgency with assignee hits all three",
			desktop: true, slack: true,
			assignee: "U123", urgency: UrgencyHigh,
			want: []DeliveryChannel{
				Desktop{Priority: bus.PriorityHigh},
				SlackDM{TargetUser: "U123", Priority: bus.PriorityHigh},
				SlackThread{ChannelID: "C01", ThreadTS: "1712345678.000100", Priority: bus.PriorityLow},
			},
		},
		{
			name:    "medium urgency normal priority",
			desktop: true, slack: true,
			assignee: "U123", urgency: UrgencyMedium,
			want: []DeliveryChannel{
				Desktop{Priority: bus.PriorityNormal},
				SlackDM{TargetUser: "U123", Priority: bus.PriorityNormal},
				SlackThread{ChannelID: "C01", ThreadTS: "1712345678.000100", Priority: bus.PriorityLow},
			},
		},
		{
			name:    "low urgency skips thread reply",
			desktop: true, slack: true,
			assignee: "U123", urgency: UrgencyLow,
			want: []DeliveryChannel{
				Desktop{Priority: bus.PriorityNormal},
				SlackDM{TargetUser: "U123", Priority: bus.PriorityNormal},
			},
		},
		{
			name:    "no assignee skips dm",
			desktop: true, slack: true,
			assignee: "", urgency: UrgencyMedium,
			want: []DeliveryChannel{
				Desktop{Priority: bus.PriorityNormal},
				SlackThread{ChannelID: "C01", ThreadTS: "1712345678.000100", Priority: bus.PriorityLow},
			},
		},
		{
			name:    "unassigned low urgency desktop only",
			desktop: true, slack: true,
			assignee: "", urgency: UrgencyLow,
			want: []DeliveryChannel{
				Desktop{Priority: bus.PriorityNormal},
			},
		},
		{
			name:    "everything disabled yields empty list",
			desktop: false, slack: false,
			assignee: "", urgency: UrgencyLow,
			want: nil,
		},
		{
			name:    "desktop disabled still delivers slack",
			desktop: false, slack: true,
			assignee: "U9", urgency: UrgencyHigh,
			want: []DeliveryChannel{
				SlackDM{TargetUser: "U9", Priority: bus.PriorityHigh},
				SlackThread{ChannelID: "C01", ThreadTS: "1712345678.000100", Priority: bus.PriorityLow},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.desktop, tt.slack)
			got := r.Route(tt.assignee, tt.urgency, mc)

			if len(got) != len(tt.want) {
				t.Fatalf("Route() returned %d channels, want %d: %#v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("channel[%d] = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRouterSetDeliveryFlags(t *testing.T) {
	r := NewRouter(true, true)
	mc := MessageContext{ChannelID: "C01", MessageTS: "1.2"}

	if got := r.Route("", UrgencyLow, mc); len(got) != 1 {
		t.Fatalf("expected desktop-only route, got %#v", got)
	}

	r.SetDeliveryFlags(false, true)
	if got := r.Route("", UrgencyLow, mc); len(got) != 0 {
		t.Fatalf("expected empty route after disabling desktop, got %#v", got)
	}
}
