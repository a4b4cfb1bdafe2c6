package id

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestDeterministicEntropy(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	newGen := func() *Generator {
		gen := NewGeneratorWithEntropy(bytes.NewReader(bytes.Repeat([]byte{7}, 64)))
		gen.now = func() time.Time { return fixed }
		return gen
	}

	a, b := newGen().GenerateString(), newGen().GenerateString()
	if a != b {
		t.Errorf("same entropy and clock should give the same id: %s != %s", a, b)
	}

	if got := ulid.MustParse(a).Time(); got != ulid.Timestamp(fixed) {
		t.Errorf("timestamp = %d, want %d", got, ulid.Timestamp(fixed))
	}
}

func TestNewRequestID(t *testing.T) {
	reqID := NewRequestID()

	if _, err := ulid.ParseStrict(reqID.String()); err != nil {
		t.Errorf("RequestID should be a bare ULID, got: %s", reqID)
	}
}

func TestNewTraceID(t *testing.T) {
	traceID := NewTraceID()

	if traceID == [16]byte{} {
		t.Error("trace id should not be zero")
	}
	if ulid.ULID(traceID).Time() == 0 {
		t.Error("trace id should carry a timestamp")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 100
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = true
	}

	if expected := goroutines * idsPerGoroutine; len(seen) != expected {
		t.Errorf("Expected %d unique IDs, got %d", expected, len(seen))
	}
}

func TestLexicographicSorting(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		ids[i] = gen.GenerateString()
		time.Sleep(2 * time.Millisecond)
	}

	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("IDs should be lexicographically sorted: %s should be > %s", ids[i], ids[i-1])
		}
	}
}

func TestDefaultGenerator(t *testing.T) {
	gen1 := Default()
	gen2 := Default()

	if gen1 != gen2 {
		t.Error("Default() should return the same instance")
	}
}

func BenchmarkGenerateString(b *testing.B) {
	gen := NewGenerator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateString()
	}
}

func BenchmarkConcurrentGenerate(b *testing.B) {
	gen := NewGenerator()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = gen.Generate()
		}
	})
}
