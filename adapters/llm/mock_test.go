package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

func TestMockLLM_StreamsSnapshots(t *testing.T) {
	m := &MockLLM{Reply: "One.\n\nTwo.", ChunkSize: 3}
	events, err := m.StreamChat(context.Background(), nil, repositories.ChatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, events)
	last := got[len(got)-1]
	if last.Type != repositories.ChatEventFinal || last.Snapshot != "One.\n\nTwo." {
		t.Errorf("final event = %+v", last)
	}
	for i := 1; i < len(got)-1; i++ {
		if got[i].Snapshot != got[i-1].Snapshot+got[i].Delta {
			t.Errorf("event %d snapshot is not cumulative", i)
		}
	}
}

func TestMockLLM_EchoesUser(t *testing.T) {
	m := &MockLLM{}
	events, _ := m.StreamChat(context.Background(), []entities.ChatMessage{
		{Role: entities.SystemRole, Content: "sys"},
		{Role: entities.UserRole, Content: "ping"},
	}, repositories.ChatOptions{})
	got := drain(t, events)
	if len(got) != 2 || got[1].Snapshot != "You said: ping\n\nWhat else would you like to tell me?" {
		t.Errorf("events = %+v", got)
	}
}

func TestMockLLM_Failures(t *testing.T) {
	openErr := errors.New("no quota")
	if _, err := (&MockLLM{OpenErr: openErr}).StreamChat(context.Background(), nil, repositories.ChatOptions{}); !errors.Is(err, openErr) {
		t.Errorf("StreamChat() error = %v, want %v", err, openErr)
	}

	m := &MockLLM{Reply: "abcdef", ChunkSize: 2, FailAfter: 2}
	events, _ := m.StreamChat(context.Background(), nil, repositories.ChatOptions{})
	got := drain(t, events)
	if len(got) != 3 || got[2].Type != repositories.ChatEventError || got[2].Snapshot != "abcd" {
		t.Errorf("events = %+v", got)
	}
}
