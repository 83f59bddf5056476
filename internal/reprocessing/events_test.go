package reprocessing

import "testing"

func TestBusPublishAndDrain(t *testing.T) {
	bus := NewBus(2)

	bus.Publish(Trigger{Type: TriggerScraperCompleted, Source: "moneyfacts"})

	select {
	case got := <-bus.Triggers():
		if got.Type != TriggerScraperCompleted || got.Source != "moneyfacts" {
			t.Fatalf("got %+v, want scraper:completed/moneyfacts", got)
		}
	default:
		t.Fatal("expected a trigger to be available")
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1)

	bus.Publish(Trigger{Type: TriggerManual})
	bus.Publish(Trigger{Type: TriggerRecovery}) // dropped: channel already full

	got := <-bus.Triggers()
	if got.Type != TriggerManual {
		t.Fatalf("got %v, want the first published trigger to survive", got.Type)
	}

	select {
	case extra := <-bus.Triggers():
		t.Fatalf("expected channel to be drained, got extra trigger %+v", extra)
	default:
	}
}

func TestNewBusDefaultsCapacity(t *testing.T) {
	bus := NewBus(0)
	if cap(bus.triggers) != 16 {
		t.Fatalf("default capacity = %d, want 16", cap(bus.triggers))
	}
}
