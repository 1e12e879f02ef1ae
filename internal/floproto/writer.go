package floproto

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrWriterClosed = errors.New("websocket writer closed")
	// ErrSlowClient is returned when a client's resource queue is full. The
	// connection is closed at that point.
	ErrSlowClient = errors.New("websocket client too slow")
)

type frame struct {
	msg    Message
	result chan error
}

// Writer owns every write to one websocket connection. Control frames
// (hello, ping, pong, close) go ahead of queued resource frames.
type Writer struct {
	send    func(Message) error
	onStall func()

	control chan frame
	data    chan frame

	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
	shut     atomic.Bool
}

// NewWriter starts a writer for conn. Each frame must be written within
// writeTimeout or the connection is closed.
func NewWriter(conn *websocket.Conn, writeTimeout time.Duration, controlCap, dataCap int) *Writer {
	send := func(msg Message) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return err
		}
		return nil
	}
	return newWriter(send, func() { _ = conn.Close() }, controlCap, dataCap)
}

func newWriter(send func(Message) error, onStall func(), controlCap, dataCap int) *Writer {
	w := &Writer{
		send:    send,
		onStall: onStall,
		control: make(chan frame, max(controlCap, 1)),
		data:    make(chan frame, max(dataCap, 1)),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// WriteControl queues msg ahead of resource frames and waits for it to be
// written.
func (w *Writer) WriteControl(msg Message) error {
	if w.shut.Load() {
		return ErrWriterClosed
	}
	f := frame{msg: msg, result: make(chan error, 1)}
	select {
	case <-w.quit:
		return ErrWriterClosed
	case w.control <- f:
	}
	return w.wait(f)
}

// WriteData queues a resource frame and waits for it to be written. A full
// queue means the client is not keeping up: the writer stops and the
// connection is closed.
func (w *Writer) WriteData(msg Message) error {
	if w.shut.Load() {
		return ErrWriterClosed
	}
	f := frame{msg: msg, result: make(chan error, 1)}
	select {
	case <-w.quit:
		return ErrWriterClosed
	case w.data <- f:
	default:
		w.stall()
		return ErrSlowClient
	}
	return w.wait(f)
}

// Close stops the writer after the frame in progress, if any. Queued frames
// fail with ErrWriterClosed.
func (w *Writer) Close() {
	w.shut.Store(true)
	w.stop()
	<-w.exited
}

func (w *Writer) wait(f frame) error {
	select {
	case err := <-f.result:
		return err
	case <-w.exited:
		// The loop may have finished f just before exiting.
		select {
		case err := <-f.result:
			return err
		default:
			return ErrWriterClosed
		}
	}
}

func (w *Writer) loop() {
	defer close(w.exited)
	for {
		f, ok := w.next()
		if !ok {
			w.drain(ErrWriterClosed)
			return
		}
		err := w.send(f.msg)
		f.result <- err
		if err != nil {
			w.shut.Store(true)
			w.stop()
			w.drain(ErrWriterClosed)
			return
		}
	}
}

func (w *Writer) next() (frame, bool) {
	select {
	case f := <-w.control:
		return f, true
	default:
	}
	select {
	case <-w.quit:
		return frame{}, false
	case f := <-w.control:
		return f, true
	case f := <-w.data:
		return f, true
	}
}

func (w *Writer) drain(err error) {
	for {
		select {
		case f := <-w.control:
			f.result <- err
		case f := <-w.data:
			f.result <- err
		default:
			return
		}
	}
}

func (w *Writer) stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

func (w *Writer) stall() {
	if w.shut.Swap(true) {
		return
	}
	if w.onStall != nil {
		w.onStall()
	}
	w.stop()
}
