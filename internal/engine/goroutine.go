package engine

import (
	"bytes"
	"runtime"
	"strconv"
)

// curGoroutineID parses the current goroutine's id from its stack
// header. Used only as a deadlock guard for blocking waits issued from
// the command loop itself (same approach as net/http's HTTP/2 bundle).
func curGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseUint(string(buf[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
