package trace

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor decoder mode: %v", err))
	}
}

// CBORRecorder appends events to a writer as a CBOR sequence. Every event
// is stamped with the recorder's run id. Safe for concurrent use.
type CBORRecorder struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	encoder *cbor.Encoder
	runID   string
	closed  bool
}

// NewCBORRecorder creates a recorder writing to w
func NewCBORRecorder(w io.Writer) *CBORRecorder {
	r := &CBORRecorder{
		w:       w,
		encoder: encMode.NewEncoder(w),
		runID:   uuid.New().String(),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// NewFileRecorder opens path for appending and records into it
func NewFileRecorder(path string) (*CBORRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	return NewCBORRecorder(f), nil
}

// RunID returns the id stamped on every event of this recorder
func (r *CBORRecorder) RunID() string {
	return r.runID
}

// Record implements Recorder. Encoding errors are dropped.
func (r *CBORRecorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	ev.RunID = r.runID
	_ = r.encoder.Encode(ev)
}

// Close stops recording and closes the writer if it is a Closer
func (r *CBORRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

var _ Recorder = (*CBORRecorder)(nil)

// Decoder reads events back from a CBOR sequence
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end of the stream
func (d *Decoder) Next() (Event, error) {
	var ev Event
	if err := d.dec.Decode(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
