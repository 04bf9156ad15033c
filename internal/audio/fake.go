package audio

import (
	"sync"
	"time"
)

// FakeDevice feeds scripted frames through the Device interface for
// tests. Frames are delivered in order once Start is called; after the
// script is exhausted the device stays running until stopped.
type FakeDevice struct {
	script   [][]byte
	interval time.Duration

	frames     chan []byte
	readErrors chan error
	scriptDone chan struct{}

	stopCh     chan struct{}
	feedDone   chan struct{}
	scriptOnce sync.Once
	started    bool
	mu         sync.Mutex
}

// NewFakeDevice creates a fake device that will deliver the given
// frames. A zero interval delivers them as fast as the consumer reads.
func NewFakeDevice(script [][]byte, interval time.Duration) *FakeDevice {
	return &FakeDevice{
		script:     script,
		interval:   interval,
		frames:     make(chan []byte, 32),
		readErrors: make(chan error, 4),
		scriptDone: make(chan struct{}),
	}
}

// InjectError delivers a transient read error, exercising the retry
// path in consumers.
func (f *FakeDevice) InjectError(err error) {
	f.readErrors <- err
}

// ScriptDone is closed once every scripted frame has been delivered.
func (f *FakeDevice) ScriptDone() <-chan struct{} {
	return f.scriptDone
}

func (f *FakeDevice) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return nil
	}

	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	go f.feed(f.stopCh, f.feedDone)
	return nil
}

func (f *FakeDevice) feed(stopCh chan struct{}, feedDone chan struct{}) {
	defer close(feedDone)

	for _, frame := range f.script {
		select {
		case f.frames <- frame:
		case <-stopCh:
			return
		}

		if f.interval > 0 {
			select {
			case <-time.After(f.interval):
			case <-stopCh:
				return
			}
		}
	}

	f.scriptOnce.Do(func() { close(f.scriptDone) })
	<-stopCh
}

func (f *FakeDevice) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return nil
	}

	close(f.stopCh)
	<-f.feedDone
	f.started = false
	return nil
}

func (f *FakeDevice) Close() error {
	return f.Stop()
}

func (f *FakeDevice) Frames() <-chan []byte {
	return f.frames
}

func (f *FakeDevice) ReadErrors() <-chan error {
	return f.readErrors
}
