package channels

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestRegistryOpenReturnsSameChannel(t *testing.T) {
	registry := NewRegistry(NewMockTransport())

	first, err := Open(registry, "scores", Int())
	if err != nil {
		t.Fatalf("Expected no error opening channel, got: %v", err)
	}

	second, err := Open(registry, "scores", Int())
	if err != nil {
		t.Fatalf("Expected no error reopening channel, got: %v", err)
	}

	if first != second {
		t.Fatal("Expected the same channel instance for the same name and codec")
	}
	if registry.Len() != 1 {
		t.Fatalf("Expected 1 registered channel, got: %d", registry.Len())
	}
}

func TestRegistryChannelTypeConflict(t *testing.T) {
	registry := NewRegistry(NewMockTransport())

	if _, err := Open(registry, "scores", Int()); err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}

	// different message type
	if _, err := Open(registry, "scores", String()); !errors.Is(err, ErrChannelTypeConflict) {
		t.Fatalf("Expected ErrChannelTypeConflict for a different type, got: %v", err)
	}

	// same message type, different wire format
	if _, err := Open(registry, "scores", JSON[int64]()); !errors.Is(err, ErrChannelTypeConflict) {
		t.Fatalf("Expected ErrChannelTypeConflict for a different content type, got: %v", err)
	}

	// names are case-sensitive
	if _, err := Open(registry, "Scores", String()); err != nil {
		t.Fatalf("Expected a distinct channel for a differently cased name, got: %v", err)
	}
}

func TestRegistryInvalidArguments(t *testing.T) {
	registry := NewRegistry(NewMockTransport())

	if _, err := Open(registry, "", String()); err != ErrInvalidChannelName {
		t.Fatalf("Expected ErrInvalidChannelName, got: %v", err)
	}
	if _, err := Open[string](registry, "names", nil); err != ErrInvalidCodec {
		t.Fatalf("Expected ErrInvalidCodec, got: %v", err)
	}
	if registry.Len() != 0 {
		t.Fatalf("Expected no channels to be registered, got: %d", registry.Len())
	}
}

func TestRegistryConcurrentOpen(t *testing.T) {
	registry := NewRegistry(NewMockTransport())

	const callers = 64
	results := make([]*Channel[string], callers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ch, err := Open(registry, "race", String())
			if err != nil {
				t.Errorf("Failed to open channel: %v", err)
				return
			}
			results[i] = ch
		}(i)
	}

	close(start)
	wg.Wait()

	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("Caller %d received a different channel instance", i)
		}
	}
	if registry.Len() != 1 {
		t.Fatalf("Expected exactly 1 channel, got: %d", registry.Len())
	}
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry(NewMockTransport())

	for _, name := range []string{"b", "c", "a"} {
		if _, err := Open(registry, name, String()); err != nil {
			t.Fatalf("Failed to open %s: %v", name, err)
		}
	}

	if got := registry.Names(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Expected sorted names, got: %v", got)
	}
}

func TestRegistryClose(t *testing.T) {
	registry := NewRegistry(NewMockTransport())

	ch, err := Open(registry, "scores", Int())
	if err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}

	registry.Close()
	registry.Close()

	if _, err := Open(registry, "other", Int()); err != ErrRegistryClosed {
		t.Fatalf("Expected ErrRegistryClosed after close, got: %v", err)
	}
	if err := ch.Publish(context.Background(), 1); err != ErrRegistryClosed {
		t.Fatalf("Expected ErrRegistryClosed from a detached channel, got: %v", err)
	}
	if registry.Len() != 0 {
		t.Fatalf("Expected empty registry after close, got: %d", registry.Len())
	}
}

func ExampleOpen() {
	registry := NewRegistry(NewMockTransport())

	_, _ = Open(registry, "scores", Int())
	_, err := Open(registry, "scores", String())

	fmt.Println(errors.Is(err, ErrChannelTypeConflict))
	// Output: true
}
