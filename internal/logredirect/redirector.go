package logredirect

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/multierr"
)

// DefaultTimeFormat is the layout of line prefixes.
const DefaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

const devNull = "/dev/null"

// Paths are the destinations of a process' output. An empty Combined
// path disables the combined log.
type Paths struct {
	Out      string
	Err      string
	Combined string
}

// Rotation configures size based rotation of log files.
type Rotation struct {
	// MaxSize is the size in megabytes at which a file is rotated.
	// Zero means lumberjack's default of 100 megabytes.
	MaxSize int `conf:"max_size"`

	// MaxBackups is the number of rotated files to keep
	MaxBackups int `conf:"max_backups"`

	// MaxAge is the number of days to keep rotated files
	MaxAge int `conf:"max_age"`

	// Compress gzips rotated files
	Compress bool `conf:"compress"`
}

// Options configure a Redirector.
type Options struct {
	// Timestamps prefixes every line with its write time
	Timestamps bool

	// TimeFormat is the prefix layout, DefaultTimeFormat if empty
	TimeFormat string

	Rotation Rotation

	// Now is used for timestamps, time.Now if nil
	Now func() time.Time

	// OnError receives write errors, which are otherwise dropped
	OnError func(error)
}

// Redirector multiplexes the output lines of one process into a
// per-stream file and an optional combined file. Files are opened
// for appending and stay open until Close.
type Redirector struct {
	mu       sync.Mutex
	out      io.Writer
	err      io.Writer
	combined io.Writer
	closers  []io.Closer
	closed   bool

	timestamps bool
	timeFormat string
	now        func() time.Time
	onError    func(error)
}

// Open opens (creating if necessary) all destinations.
func Open(paths Paths, opts Options) (*Redirector, error) {
	r := &Redirector{
		timestamps: opts.Timestamps,
		timeFormat: opts.TimeFormat,
		now:        opts.Now,
		onError:    opts.OnError,
	}

	if r.timeFormat == "" {
		r.timeFormat = DefaultTimeFormat
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.onError == nil {
		r.onError = func(error) {}
	}

	// destinations sharing a path share a writer
	writers := make(map[string]io.Writer, 3)

	open := func(path string) (io.Writer, error) {
		if path == "" {
			return nil, nil
		}
		if w, ok := writers[path]; ok {
			return w, nil
		}
		if path == devNull {
			writers[path] = io.Discard
			return io.Discard, nil
		}

		w := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.Rotation.MaxSize,
			MaxBackups: opts.Rotation.MaxBackups,
			MaxAge:     opts.Rotation.MaxAge,
			Compress:   opts.Rotation.Compress,
		}

		// an empty write opens the file, surfacing errors now
		// instead of on the first line
		if _, err := w.Write(nil); err != nil {
			return nil, err
		}

		writers[path] = w
		r.closers = append(r.closers, w)

		return w, nil
	}

	var err error
	if r.out, err = open(paths.Out); err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	if r.err, err = open(paths.Err); err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	if r.combined, err = open(paths.Combined); err != nil {
		return nil, multierr.Append(err, r.Close())
	}

	return r, nil
}

// Stdout returns a writer for one run's standard output.
func (r *Redirector) Stdout() *StreamWriter {
	return &StreamWriter{r: r, dest: r.out}
}

// Stderr returns a writer for one run's standard error.
func (r *Redirector) Stderr() *StreamWriter {
	return &StreamWriter{r: r, dest: r.err}
}

// Close closes all files. Lines arriving afterwards are dropped.
func (r *Redirector) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	for _, c := range r.closers {
		errs = multierr.Append(errs, c.Close())
	}

	return errs
}

func (r *Redirector) writeLine(dest io.Writer, line []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	var buf bytes.Buffer
	if r.timestamps {
		buf.WriteString(r.now().Format(r.timeFormat))
		buf.WriteString(": ")
	}
	buf.Write(line)
	buf.WriteByte('\n')

	var errs error
	if dest != nil {
		_, err := dest.Write(buf.Bytes())
		errs = multierr.Append(errs, err)
	}
	if r.combined != nil && r.combined != dest {
		_, err := r.combined.Write(buf.Bytes())
		errs = multierr.Append(errs, err)
	}

	if errs != nil {
		r.onError(errs)
	}
}

// StreamWriter splits a byte stream into lines and forwards complete
// lines to the redirector. A trailing partial line is held back until
// the next newline or Flush.
type StreamWriter struct {
	mu   sync.Mutex
	r    *Redirector
	dest io.Writer
	buf  []byte
}

func (w *StreamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}

		w.r.writeLine(w.dest, bytes.TrimSuffix(w.buf[:i], []byte("\r")))
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

// Flush writes a pending partial line.
func (w *StreamWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.r.writeLine(w.dest, w.buf)
		w.buf = nil
	}

	return nil
}
