package progress

import "io"

// Reader wraps an io.Reader and reports cumulative progress via a callback.
type Reader struct {
	reader         io.Reader
	total          int64 // declared size, <= 0 when unknown
	onProgress     func(read int64, total int64)
	read           int64 // cumulative total
	sinceReport    int64 // bytes since last report
	reportInterval int64 // bytes, 0 reports on every read
}

// NewReader wraps r. The callback fires at least every interval bytes, once the
// declared total is reached, and at EOF.
func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *Reader {
	return &Reader{
		reader:         r,
		total:          total,
		onProgress:     cb,
		reportInterval: interval,
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.sinceReport += int64(n)

		if r.sinceReport >= r.reportInterval || (r.total > 0 && r.read >= r.total) {
			r.report()
		}
	}

	if err == io.EOF && r.sinceReport > 0 {
		r.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (r *Reader) BytesRead() int64 {
	return r.read
}

func (r *Reader) report() {
	r.sinceReport = 0

	if r.onProgress != nil {
		r.onProgress(r.read, r.total)
	}
}
