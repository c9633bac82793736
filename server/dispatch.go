package server

import (
	"fmt"
	"syscall"
)

// Handler serves one op.
type Handler func(req *Request) (*Response, error)

type Dispatcher struct {
	handlers map[Op]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Op]Handler)}
}

// Register records handler as the function Dispatch calls for op,
// replacing any earlier one.
func (dp *Dispatcher) Register(op Op, handler Handler) {
	dp.handlers[op] = handler
}

// Dispatch passes req to the handler registered for req.Op.  Errors
// come back encoded in the Response; Dispatch never returns nil.
func (dp *Dispatcher) Dispatch(req *Request) (res *Response) {
	handler, ok := dp.handlers[req.Op]
	if !ok {
		return errResponse(fmt.Errorf("%w: unknown op %q", syscall.EINVAL, req.Op))
	}
	res, err := handler(req)
	if err != nil {
		return errResponse(err)
	}
	if res == nil {
		res = &Response{}
	}
	return
}
