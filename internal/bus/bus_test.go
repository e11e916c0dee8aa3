package bus

import (
	"errors"
	"testing"
)

func TestPublishDeliveryEvents(t *testing.T) {
	b := New()

	var dms []SlackDMDelivery
	b.Subscribe("slack", Handlers{
		SlackDM: func(ev SlackDMDelivery) error {
			dms = append(dms, ev)
			return nil
		},
	})

	if err := b.PublishSlackDM(SlackDMDelivery{TaskID: "t1", TargetUser: "U1"}); err != nil {
		t.Fatalf("PublishSlackDM: %v", err)
	}
	if len(dms) != 1 || dms[0].TargetUser != "U1" {
		t.Errorf("dms = %+v", dms)
	}

	// Events a subscriber did not register for are skipped silently.
	if err := b.PublishDesktopDelivery(DesktopDelivery{TaskID: "t1"}); err != nil {
		t.Errorf("PublishDesktopDelivery with no subscriber: %v", err)
	}
}

func TestPublishReturnsFirstSubscriberError(t *testing.T) {
	b := New()
	wantErr := errors.New("socket closed")
	var secondRan bool

	b.Subscribe("a", Handlers{
		DesktopDelivery: func(DesktopDelivery) error { return wantErr },
	})
	b.Subscribe("b", Handlers{
		DesktopDelivery: func(DesktopDelivery) error {
			secondRan = true
			return nil
		},
	})

	err := b.PublishDesktopDelivery(DesktopDelivery{TaskID: "t1"})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if !secondRan {
		t.Error("error from one subscriber stopped fan-out to the rest")
	}
}

func TestPublishTaskProcessedContainsPanics(t *testing.T) {
	b := New()
	var got []TaskProcessed

	b.Subscribe("bad", Handlers{
		TaskProcessed: func(TaskProcessed) { panic("listener bug") },
	})
	b.Subscribe("good", Handlers{
		TaskProcessed: func(ev TaskProcessed) { got = append(got, ev) },
	})

	// Must not panic the publisher.
	b.PublishTaskProcessed(TaskProcessed{TaskID: "t1"})

	if len(got) != 1 {
		t.Errorf("healthy subscriber got %d events, want 1", len(got))
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	var hits int
	b.Subscribe("x", Handlers{
		ProcessingError: func(ProcessingError) { hits++ },
	})

	b.PublishProcessingError(ProcessingError{MessageID: "m1"})
	b.Unsubscribe("x")
	b.PublishProcessingError(ProcessingError{MessageID: "m2"})

	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestResubscribeReplaces(t *testing.T) {
	b := New()
	var first, second int
	b.Subscribe("x", Handlers{TaskProcessed: func(TaskProcessed) { first++ }})
	b.Subscribe("x", Handlers{TaskProcessed: func(TaskProcessed) { second++ }})

	b.PublishTaskProcessed(TaskProcessed{TaskID: "t1"})

	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d", first, second)
	}
}
