package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func trippyConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb := New(trippyConfig("test"))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	}

	if !cb.IsOpen() {
		t.Fatalf("breaker state = %v, want open after repeated failures", cb.State())
	}

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker error = %v, want ErrOpenState", err)
	}
}

func TestRegistryKeysBreakers(t *testing.T) {
	reg := NewRegistry(FeedHostConfig)

	a := reg.Get("a.example")
	b := reg.Get("b.example")
	if a == b {
		t.Error("different hosts must get different breakers")
	}
	if reg.Get("a.example") != a {
		t.Error("same host must get the same breaker")
	}
	if a.Name() != "feed:a.example" {
		t.Errorf("breaker name = %q", a.Name())
	}
}
