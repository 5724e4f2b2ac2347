package mqtt

import (
	"fmt"
	"testing"
)

func countMsg(i int) bufferedMsg {
	return bufferedMsg{topic: TopicTelemetry, payload: []byte(fmt.Sprintf(`{"people_count":"%d"}`, i))}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferKeepsOrder(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushed   int
		first    int // payload index of the oldest kept message
	}{
		{"below capacity", 10, 5, 0},
		{"exactly full", 10, 10, 0},
		{"overflow drops oldest", 5, 8, 3},
		{"overflow many times", 3, 20, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			for i := 0; i < tt.pushed; i++ {
				rb.push(countMsg(i))
			}

			got := rb.drainAll()
			want := min(tt.pushed, tt.capacity)
			if len(got) != want {
				t.Fatalf("expected %d items, got %d", want, len(got))
			}
			for i, m := range got {
				if string(m.payload) != string(countMsg(tt.first+i).payload) {
					t.Errorf("item %d: got %s, want %s", i, m.payload, countMsg(tt.first+i).payload)
				}
			}
			if rb.drainAll() != nil {
				t.Error("expected second drain to be empty")
			}
		})
	}
}

func TestRingBufferOverflowFlagResetOnDrain(t *testing.T) {
	rb := newRingBuffer(2)
	for i := 0; i < 3; i++ {
		rb.push(countMsg(i))
	}
	if !rb.overflow {
		t.Fatal("expected overflow after pushing past capacity")
	}
	rb.drainAll()
	if rb.overflow {
		t.Error("expected overflow cleared by drain")
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(4)
	for i := 0; i < 6; i++ {
		rb.push(countMsg(i))
	}
	rb.drainAll()

	rb.push(countMsg(100))
	rb.push(countMsg(101))
	if rb.len() != 2 {
		t.Fatalf("expected len 2, got %d", rb.len())
	}
	got := rb.drainAll()
	if string(got[0].payload) != string(countMsg(100).payload) {
		t.Errorf("unexpected first item after reuse: %s", got[0].payload)
	}
	if rb.len() != 0 {
		t.Errorf("expected len 0 after drain, got %d", rb.len())
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10)
	rb.push(bufferedMsg{
		topic:    TopicEvents,
		payload:  []byte(`{"event":{"name":"room_full"}}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].topic != TopicEvents {
		t.Errorf("topic: got %s, want %s", got[0].topic, TopicEvents)
	}
	if string(got[0].payload) != `{"event":{"name":"room_full"}}` {
		t.Errorf("payload: got %s", got[0].payload)
	}
	if got[0].qos != 1 {
		t.Errorf("qos: got %d, want 1", got[0].qos)
	}
	if !got[0].retained {
		t.Error("retained: got false, want true")
	}
}
