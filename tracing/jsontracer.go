package tracing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// JSONTracer writes finished services as a JSON array.
type JSONTracer struct {
	w         io.Writer
	lock      sync.Mutex
	firstItem bool
	finished  bool
}

// NewJSONTracer creates a JSONTracer that writes into w. Close must be called
// to terminate the array.
func NewJSONTracer(w io.Writer) *JSONTracer {
	_, err := w.Write([]byte("[\n"))
	if err != nil {
		panic(err)
	}

	return &JSONTracer{
		w:         w,
		firstItem: true,
	}
}

// NewJSONTracerFile creates a JSONTracer that writes into a new file. An empty
// path picks a unique name. The array is terminated at exit if Close has not
// been called.
func NewJSONTracerFile(path string) *JSONTracer {
	if path == "" {
		path = xid.New().String() + ".json"
	}

	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Recording services in %s\n", path)

	t := NewJSONTracer(f)

	atexit.Register(func() { t.Close() })

	return t
}

// StartService does nothing.
func (t *JSONTracer) StartService(_ Service) {
	// Do nothing
}

// EndService appends the service to the array.
func (t *JSONTracer) EndService(s Service) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.finished {
		return
	}

	if t.firstItem {
		t.firstItem = false
	} else {
		_, err := t.w.Write([]byte(",\n"))
		if err != nil {
			panic(err)
		}
	}

	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}

	_, err = t.w.Write(b)
	if err != nil {
		panic(err)
	}
}

// RecordEvent does nothing.
func (t *JSONTracer) RecordEvent(_ Event) {
	// Do nothing
}

// Close terminates the array and closes the writer if it can be closed.
func (t *JSONTracer) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.finished {
		return nil
	}

	t.finished = true

	_, err := t.w.Write([]byte("\n]\n"))
	if err != nil {
		return err
	}

	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
