package message

import (
	"errors"
	"fmt"
)

// Message owns one option container together with the payload that
// followed it on the wire. Framing around the option section (codes,
// tokens, transport headers) is up to the caller.
type Message struct {
	Options Options
	Payload []byte
}

// Size returns the encoded size of the option section and payload.
func (m Message) Size() (int, error) {
	size, err := m.Marshal(nil)
	if errors.Is(err, ErrTooSmall) {
		err = nil
	}
	return size, err
}

// Marshal writes the option header and, when a payload exists, the 0xff
// marker followed by the payload bytes.
func (m Message) Marshal(buf []byte) (int, error) {
	payloadLen := len(m.Payload)
	if payloadLen > 0 {
		// for separator 0xff
		payloadLen++
	}
	optionsLen, err := m.Options.Marshal(nil)
	if err != nil && !errors.Is(err, ErrTooSmall) {
		return -1, err
	}
	size := optionsLen + payloadLen
	if len(buf) < size {
		return size, ErrTooSmall
	}

	optionsLen, err = m.Options.Marshal(buf)
	if err != nil {
		return -1, err
	}
	if len(m.Payload) > 0 {
		buf[optionsLen] = 0xff
		copy(buf[optionsLen+1:], m.Payload)
	}
	return size, nil
}

// Unmarshal reads the option section of data into the container and
// keeps the bytes behind the 0xff marker as the payload. Without a
// marker the payload stays empty. All option numbers are kept opaque,
// so the result re-encodes to identical bytes; pass registry
// definitions to Options.Unmarshal directly to validate values.
func (m *Message) Unmarshal(data []byte) (int, error) {
	proc, err := m.Options.Unmarshal(data, nil)
	if err != nil {
		return -1, err
	}
	m.Payload = nil
	if proc < len(data) {
		m.Payload = data[proc:]
	}
	return len(data), nil
}

func (m Message) String() string {
	buf := fmt.Sprintf("Options: %v", m.Options)
	path, err := m.Options.Path()
	if err == nil {
		buf = fmt.Sprintf("%s, Path: %v", buf, path)
	}
	cf, err := m.Options.ContentFormat()
	if err == nil {
		buf = fmt.Sprintf("%s, ContentFormat: %v", buf, cf)
	}
	queries, err := m.Options.Queries()
	if err == nil {
		buf = fmt.Sprintf("%s, Queries: %+v", buf, queries)
	}
	if len(m.Payload) > 0 {
		buf = fmt.Sprintf("%s, PayloadLen: %v", buf, len(m.Payload))
	}
	return buf
}
