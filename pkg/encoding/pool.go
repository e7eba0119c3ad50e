// Package encoding pools JSON buffers for response bodies and event payloads.
package encoding

import (
	"bytes"
	"encoding/json"
	"sync"
)

// maxPooledBuffer keeps outlier payloads from pinning memory in the pool
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer retrieves an empty buffer from the pool
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// EncodeJSON encodes v without the trailing newline json.Encoder adds. The
// returned slice is a copy and stays valid after the buffer is recycled.
func EncodeJSON(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}
