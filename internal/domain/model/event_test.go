package model

import (
	"testing"
	"time"
)

func TestEventLive(t *testing.T) {
	ev := Event{EventID: "e1"}
	if !ev.Live() {
		t.Error("event without DeletedAt should be live")
	}

	now := time.Now()
	ev.DeletedAt = &now
	if ev.Live() {
		t.Error("event with DeletedAt should not be live")
	}
}

func TestEventHasTime(t *testing.T) {
	ev := Event{Elapsed: 0}
	if ev.HasTime() {
		t.Error("zero elapsed is a sentinel, not a recorded time")
	}

	ev.Elapsed = 83*time.Second + 456*time.Millisecond
	if !ev.HasTime() {
		t.Error("positive elapsed should count as a recorded time")
	}
}
