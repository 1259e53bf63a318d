package packet

import (
	"bytes"

	"github.com/lodeworks/lodestone/protocol"
)

func WriteString(buf *bytes.Buffer, s string) {
	protocol.WriteVarint(buf, int32(len(s)))
	buf.WriteString(s)
}

func ReadString(buf *protocol.Buffer) (string, error) {
	length, err := buf.ReadVarint()
	if err != nil {
		return "", err
	}

	if length < 0 || int(length) > buf.Remaining() {
		return "", protocol.ErrUnderflow
	}

	data := buf.Bytes()[:length]
	buf.SetPos(buf.Pos() + int(length))
	return string(data), nil
}
