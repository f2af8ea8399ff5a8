package bus

import (
	"testing"

	"github.com/glowmesh/fusion-engine/internal/models"
)

func TestEverySubscriberSeesEveryWindow(t *testing.T) {
	b := New(16)
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	for i := 0; i < 10; i++ {
		b.Publish(models.SampleWindow{Sequence: uint64(i)})
	}

	for _, ch := range []<-chan models.SampleWindow{ch1, ch2} {
		for i := 0; i < 10; i++ {
			w := <-ch
			if w.Sequence != uint64(i) {
				t.Fatalf("sequence = %d, want %d", w.Sequence, i)
			}
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New(2)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Publish(models.SampleWindow{Sequence: uint64(i)})
	}

	// Buffer of 2 with drop-oldest keeps the most recent windows.
	first := <-ch
	if first.Sequence != 3 {
		t.Fatalf("first buffered sequence = %d, want 3", first.Sequence)
	}
	second := <-ch
	if second.Sequence != 4 {
		t.Fatalf("second buffered sequence = %d, want 4", second.Sequence)
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	b := New(4)
	defer b.Close()

	_, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}
	cancel()
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0 after cancel", b.Subscribers())
	}
	// Cancelling twice is harmless.
	cancel()
}

func TestCloseClosesChannels(t *testing.T) {
	b := New(4)
	ch, _ := b.Subscribe()
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Close")
	}

	// Publish and Subscribe after close are no-ops.
	b.Publish(models.SampleWindow{})
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("late subscription channel open on closed bus")
	}
}
