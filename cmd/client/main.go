package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/client"
	"github.com/openclaw/messenger-server-go/internal/config"
	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/redis"
)

func main() {
	user := flag.String("user", "", "log in as this user on start")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for each reply")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, cfg.RedisURL, config.PingTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	c := client.New(rdb, client.Options{
		CommandKey:  cfg.CommandKey(),
		EventKey:    cfg.EventKey(),
		FanoutKey:   cfg.FanoutKey(),
		ReplyPrefix: cfg.ChannelPrefix,
		Timeout:     *timeout,
	})

	frames, err := c.Watch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to watch fan-out channel")
	}

	var current atomic.Value
	current.Store("")
	login := func() string { return current.Load().(string) }

	go func() {
		for f := range frames {
			if client.Visible(f, login()) {
				fmt.Println(f.Display())
			}
		}
	}()

	go client.Keepalive(ctx, c, client.KeepaliveInterval(cfg.InactivityTimeout()), login, func(name string, reply model.Reply) {
		if current.CompareAndSwap(name, "") {
			fmt.Fprintf(os.Stderr, "session for %s expired (%s), log in again\n", name, reply.Info)
		}
	})

	send := func(msg model.Message) {
		reply, err := c.Send(ctx, msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		if !reply.OK() {
			fmt.Fprintf(os.Stderr, "%s: %s\n", reply.Error, reply.Info)
			return
		}
		switch msg.Type {
		case model.TypeRegister, model.TypeLogin:
			current.Store(msg.Sender)
		case model.TypeLogout:
			current.Store("")
		}
		if reply.Info != "" && reply.Info != "Success" {
			fmt.Println(reply.Info)
		}
	}

	if *user != "" {
		send(model.Message{Type: model.TypeLogin, Sender: *user})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logout(c, login())
			return
		case line, ok := <-lines:
			if !ok {
				logout(c, login())
				return
			}
			msg, err := client.ParseCommand(line, login())
			if errors.Is(err, client.ErrQuit) {
				logout(c, login())
				return
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if !msg.Type.Command() {
				if err := c.Notify(ctx, msg); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
				continue
			}
			send(msg)
		}
	}
}

// logout tells the server we left without waiting for an answer.
func logout(c *client.Client, login string) {
	if login == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Notify(ctx, model.Message{Type: model.TypeLogout, Sender: login}); err != nil {
		log.Warn().Err(err).Msg("failed to send logout")
	}
}
