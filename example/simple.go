package main

import (
	"log/slog"
	"os"

	"github.com/lodeworks/lodestone"
	"github.com/lodeworks/lodestone/session"
)

type echoProcessor struct {
	logger *slog.Logger
}

func (p *echoProcessor) ProcessPacket(conn *session.Conn, id int32, payload []byte) error {
	p.logger.Info("received packet", "addr", conn.RemoteAddr(), "phase", conn.Phase(), "id", id, "len", len(payload))
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	server := lodestone.New(&echoProcessor{logger: logger}, logger, nil, nil)
	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", "err", err)
		return
	}

	for {
		if _, err := server.Accept(); err != nil {
			logger.Error("failed to accept connection", "err", err)
			return
		}
	}
}
