package dashboard

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/query"
)

// waitMsg runs cmd with a deadline.
func waitMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("command did not return")
		return nil
	}
}

func TestBridge_CoalescesPerKey(t *testing.T) {
	// Given: several pushes for two keys before the loop reads
	b := NewBridge()
	k1, k2 := event.Key("e1"), event.Key("e2")
	b.Push(successState(k1, "a", 1))
	b.Push(successState(k2, "x", 1))
	b.Push(successState(k1, "b", 2))

	// When: the listener runs
	msg := waitMsg(t, b.Wait())

	// Then: one snapshot per key arrives, the latest, in first-push order
	sm, ok := msg.(StatesMsg)
	if !ok {
		t.Fatalf("got %T, want StatesMsg", msg)
	}
	if len(sm.States) != 2 {
		t.Fatalf("len(States) = %d, want 2", len(sm.States))
	}
	if !sm.States[0].Key.Equal(k1) || sm.States[0].Data != "b" {
		t.Errorf("States[0] = %v %v, want e1 with latest data", sm.States[0].Key, sm.States[0].Data)
	}
	if !sm.States[1].Key.Equal(k2) {
		t.Errorf("States[1].Key = %v, want e2", sm.States[1].Key)
	}
}

func TestBridge_DropsOlderVersion(t *testing.T) {
	b := NewBridge()
	k := event.Key("e1")
	b.Push(successState(k, "new", 5))
	b.Push(successState(k, "old", 4))

	sm := waitMsg(t, b.Wait()).(StatesMsg)

	if len(sm.States) != 1 || sm.States[0].Data != "new" {
		t.Errorf("States = %+v, want only version 5", sm.States)
	}
}

func TestBridge_PushNeverBlocks(t *testing.T) {
	b := NewBridge()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := range 1000 {
			b.Push(successState(event.Key("e1"), i, uint64(i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked without a reader")
	}
	sm := waitMsg(t, b.Wait()).(StatesMsg)
	if len(sm.States) != 1 || sm.States[0].Data != 999 {
		t.Errorf("States = %+v, want the last push", sm.States)
	}
}

func TestBridge_CloseReleasesWait(t *testing.T) {
	b := NewBridge()
	b.Close()
	b.Close()

	if msg := waitMsg(t, b.Wait()); msg != nil {
		t.Errorf("Wait after Close = %#v, want nil", msg)
	}
}

func TestBridge_ReceivesCacheNotifications(t *testing.T) {
	// Given: a bridge subscribed to a cache key
	c := query.New(query.Options{})
	defer c.Close()
	b := NewBridge()
	unsub := c.Subscribe(event.Key("e1"), b.Push)
	defer unsub()

	// When: the entry is written from several goroutines
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SetData(event.Key("e1"), i)
		}()
	}
	wg.Wait()

	// Then: the listener delivers the final snapshot
	sm := waitMsg(t, b.Wait()).(StatesMsg)
	final, _ := c.State(event.Key("e1"))
	if len(sm.States) != 1 || sm.States[0].Version != final.Version {
		t.Errorf("delivered %+v, want version %d", sm.States, final.Version)
	}
}
