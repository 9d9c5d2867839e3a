package central

import (
	"net"
	"sync"

	"github.com/kilianp07/evcharge/core/protocol"
)

// conn wraps one accepted transport with a stable id. The id, not the
// net.Conn, keys every lookup table; the dispatch goroutine owns the read
// side while sends from any goroutine serialize on the write mutex.
type conn struct {
	id int64
	c  net.Conn

	wmu sync.Mutex
}

// send frames and writes one message. Safe for concurrent use.
func (c *conn) send(msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.c.Write(protocol.Encode(msg))
	return err
}

func (c *conn) close() {
	_ = c.c.Close()
}
