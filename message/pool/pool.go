package pool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

type Pool struct {
	// This field needs to be the first in the struct to ensure proper word alignment on 32-bit platforms.
	// See: https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	currentMessagesInPool atomic.Int64
	messagePool           sync.Pool
	maxNumMessages        uint32
}

func New(maxNumMessages uint32) *Pool {
	return &Pool{
		maxNumMessages: maxNumMessages,
	}
}

// AcquireMessage returns an empty Message instance from the pool.
//
// The returned Message instance may be passed to ReleaseMessage when it
// is no longer needed. This allows Message recycling, reduces GC
// pressure and usually improves performance.
func (p *Pool) AcquireMessage(ctx context.Context) *Message {
	v := p.messagePool.Get()
	if v == nil {
		return NewMessage(ctx)
	}
	r, ok := v.(*Message)
	if !ok {
		panic(fmt.Errorf("invalid message type(%T) for pool", v))
	}
	p.currentMessagesInPool.Dec()
	r.ctx = ctx
	return r
}

// ReleaseMessage returns req acquired via AcquireMessage to the pool.
//
// It is forbidden to access req or its members after returning it to
// the pool.
func (p *Pool) ReleaseMessage(req *Message) {
	for {
		v := p.currentMessagesInPool.Load()
		if v >= int64(p.maxNumMessages) {
			return
		}
		if p.currentMessagesInPool.CompareAndSwap(v, v+1) {
			break
		}
	}
	req.Reset()
	req.ctx = nil
	p.messagePool.Put(req)
}
