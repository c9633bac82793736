package server

import (
	"net"
	"sync"

	. "github.com/stevegt/goadapt"
	"github.com/vmihailenco/msgpack"
)

// Client makes calls over one connection.  Calls are serialized.
type Client struct {
	conn net.Conn
	enc  *msgpack.Encoder
	dec  *msgpack.Decoder
	mu   sync.Mutex
}

// Dial connects to a server listening on the UNIX socket sock.
func Dial(sock string) (c *Client, err error) {
	defer Return(&err)
	conn, err := net.Dial("unix", sock)
	Ck(err)
	c = &Client{
		conn: conn,
		enc:  msgpack.NewEncoder(conn),
		dec:  msgpack.NewDecoder(conn),
	}
	return
}

// Do sends req and waits for the answer.  A failed call returns the
// Response along with a *RemoteError describing it.
func (c *Client) Do(req *Request) (res *Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.enc.Encode(req)
	if err != nil {
		return
	}
	res = &Response{}
	err = c.dec.Decode(res)
	if err != nil {
		return nil, err
	}
	if res.Code != "" {
		return res, &RemoteError{Code: res.Code, Msg: res.Err}
	}
	return
}

func (c *Client) Close() error {
	return c.conn.Close()
}
