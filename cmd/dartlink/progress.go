package main

import (
	"fmt"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressLine shows a single updating status line with remaining time,
// e.g. "Scanning for boards (8s)   ". Stop clears the line; safe to call
// more than once.
type progressLine struct {
	prefix   string
	duration time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// startProgress begins displaying the line in a background goroutine. A
// zero duration shows the prefix without a countdown.
func startProgress(prefix string, duration time.Duration) *progressLine {
	p := &progressLine{
		prefix:   prefix,
		duration: duration,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *progressLine) loop() {
	defer close(p.done)

	start := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	fmt.Printf("\r%s...   ", p.prefix)
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if p.duration <= 0 {
				continue
			}
			remaining := p.duration - time.Since(start)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Printf("\r%s (%ds)   ", p.prefix, int(remaining.Seconds()+0.5))
		}
	}
}

// Stop clears the progress line and releases the goroutine.
func (p *progressLine) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		fmt.Print(clearLineSequence)
	})
}
