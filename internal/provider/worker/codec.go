package worker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// headerSize is the length of the big-endian size prefix of every message.
const headerSize = 4

// MaxMessageSize bounds a single message in either direction.
const MaxMessageSize = 64 << 20

// errMessageTooLarge is returned for messages over MaxMessageSize.
var errMessageTooLarge = errors.New("message exceeds size limit")

// WriteMessage encodes v with msgpack and writes it with a 4-byte length prefix.
func WriteMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", errMessageTooLarge, len(payload))
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload))) //nolint:gosec // Bounded by MaxMessageSize.
	copy(buf[headerSize:], payload)

	if _, err = w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// ReadMessage reads one length-prefixed msgpack message into v.
// A stream closed between messages yields io.EOF.
func ReadMessage(r io.Reader, v any) error {
	var header [headerSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}

		return fmt.Errorf("read message header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", errMessageTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read message body: %w", err)
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	return nil
}
