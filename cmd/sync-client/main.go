package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	synchub "chronozoom/internal/sync"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP change feed address")
	raw := flag.Bool("raw", false, "print lines as received")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Str("service", "sync-client").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := run(ctx, *addr, *raw, log); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second): // auto reconnect
		}
	}
}

func run(ctx context.Context, addr string, raw bool, log zerolog.Logger) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Info().Str("addr", addr).Msg("connected")

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()
		if raw {
			fmt.Println(string(line))
			continue
		}

		var ev synchub.TreeEvent
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			fmt.Println(string(line))
			continue
		}
		log.Info().
			Str("type", ev.Type).
			Str("collection", ev.CollectionID.String()).
			Str("id", ev.ID.String()).
			Str("title", ev.Title).
			Time("at", ev.At).
			Msg("event")
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return net.ErrClosed
}
