package progress

import "io"

// Reader wraps an io.Reader and reports whole-percent progress via a callback.
// With a known Total the callback fires only when the percentage increases,
// so the reported sequence is strictly increasing and ends at 100 once Total
// bytes were read. With an unknown Total it fires every reportInterval bytes
// with a percent of -1.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(percent int, read int64)

	totalRead      int64 // cumulative total
	lastPercent    int
	sinceReport    int64 // bytes since last report, unknown totals only
	reportInterval int64 // bytes
}

func NewReader(r io.Reader, total int64, interval int64, cb func(percent int, read int64)) *Reader {
	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.report(n)
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.totalRead
}

func (pr *Reader) report(n int) {
	if pr.OnProgress == nil {
		return
	}

	if pr.Total <= 0 {
		pr.sinceReport += int64(n)
		if pr.reportInterval > 0 && pr.sinceReport >= pr.reportInterval {
			pr.OnProgress(-1, pr.totalRead)
			pr.sinceReport = 0
		}

		return
	}

	percent := Percent(pr.totalRead, pr.Total)
	if percent > pr.lastPercent {
		pr.lastPercent = percent
		pr.OnProgress(percent, pr.totalRead)
	}
}

// Percent returns floor(read*100/total) clamped to [0, 100], or -1 when the
// total is unknown.
func Percent(read, total int64) int {
	if total <= 0 {
		return -1
	}

	p := read * 100 / total
	if p > 100 {
		p = 100
	}

	if p < 0 {
		p = 0
	}

	return int(p)
}
