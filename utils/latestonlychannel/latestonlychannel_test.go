package latestonlychannel

import (
	"testing"
	"time"
)

func TestPassesValuesThrough(t *testing.T) {
	inputCh := make(chan int, 1)
	outputCh := Wrap(inputCh)

	inputCh <- 1
	if v := <-outputCh; v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}

	inputCh <- 2
	if v := <-outputCh; v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}

	close(inputCh)
	if _, ok := <-outputCh; ok {
		t.Fatalf("expected output channel to be closed")
	}
}

func TestDiscardsStaleValues(t *testing.T) {
	inputCh := make(chan int)
	outputCh := Wrap(inputCh)

	// with no consumer attached, only the newest value should survive
	for i := 1; i <= 50; i++ {
		inputCh <- i
	}

	// give the pipe a moment to observe the last write
	time.Sleep(10 * time.Millisecond)

	if v := <-outputCh; v != 50 {
		t.Fatalf("expected the latest value 50, got %d", v)
	}

	close(inputCh)
	if _, ok := <-outputCh; ok {
		t.Fatalf("expected output channel to be closed")
	}
}
