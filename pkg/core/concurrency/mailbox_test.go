package concurrency

import (
	"context"
	"testing"
	"time"
)

func TestBoundedMailbox_SendReceive(t *testing.T) {
	mb := NewBoundedMailbox(2)
	defer mb.Close()

	if err := mb.Send("a"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := mb.Send("b"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := mb.Send("c"); err != ErrMailboxFull {
		t.Errorf("Send() on full mailbox error = %v, want %v", err, ErrMailboxFull)
	}

	msg, err := mb.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if msg != "a" {
		t.Errorf("Receive() = %v, want a", msg)
	}
}

func TestBoundedMailbox_Close(t *testing.T) {
	mb := NewBoundedMailbox(1)
	mb.Close()
	mb.Close()

	if !mb.IsClosed() {
		t.Error("IsClosed() should be true after Close")
	}
	if err := mb.Send("x"); err != ErrMailboxClosed {
		t.Errorf("Send() after close error = %v, want %v", err, ErrMailboxClosed)
	}
	if _, err := mb.Receive(context.Background()); err != ErrMailboxClosed {
		t.Errorf("Receive() after close error = %v, want %v", err, ErrMailboxClosed)
	}
}

func TestBoundedMailbox_ReceiveHonorsContext(t *testing.T) {
	mb := NewBoundedMailbox(1)
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := mb.Receive(ctx); err != context.DeadlineExceeded {
		t.Errorf("Receive() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestNewBoundedMailbox_PanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewBoundedMailbox(0) should panic")
		}
	}()
	NewBoundedMailbox(0)
}
