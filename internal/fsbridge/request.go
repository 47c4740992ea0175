package fsbridge

import (
	"loopio/internal/loop"
)

// Storage requests above this are refused as allocation failures at
// submission time instead of being handed to the allocator.
const MAX_REQ_BUF = int64(1) << 30

// Request is the in-flight state for one submitted operation. From creation
// until the dispatcher releases it, buf is owned exclusively by the pending
// native operation - nothing else reads or writes it.
type Request struct {
	kind	loop.OpCode
	token	int	// 0 for synchronous execution
	path	string
	dst		[]byte	// caller-visible read destination
	off		int64	// where in dst read data lands
	buf		[]byte	// request-owned storage
}

func createRequest(kind loop.OpCode, token int, path string) *Request {
	return &Request{kind: kind, token: token, path: path}
}

// createReadRequest sizes owned storage to length-offset. The native read
// lands there; the dispatcher copies it into dst at offset once the
// operation has fully finished.
func createReadRequest(token int, dst []byte, length int64, offset int64) (*Request, error) {
	if offset < 0 || length < offset || length > int64(len(dst)) {
		return nil, ErrInvalidUsage
	}
	size := length - offset
	if size > MAX_REQ_BUF {
		return nil, ErrAllocation
	}
	return &Request{
		kind: 	loop.OpRead,
		token: 	token,
		dst: 	dst,
		off: 	offset,
		buf: 	make([]byte, size),
	}, nil
}

// createWriteRequest copies src[offset:offset+length] into owned storage
// before returning, so the caller is free to reuse src the moment the
// submitting call comes back.
func createWriteRequest(token int, src []byte, length int64, offset int64) (*Request, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(src)) {
		return nil, ErrInvalidUsage
	}
	if length > MAX_REQ_BUF {
		return nil, ErrAllocation
	}
	buf := make([]byte, length)
	copy(buf, src[offset:offset+length])
	return &Request{
		kind: 	loop.OpWrite,
		token: 	token,
		buf: 	buf,
	}, nil
}

// release drops the owned storage. Called exactly once, by the dispatcher on
// the async path or by the submitting frame on the sync path.
func (r *Request) release() {
	r.buf = nil
	r.dst = nil
}
