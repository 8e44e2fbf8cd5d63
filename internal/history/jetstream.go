package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type jetStreamMirror struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	opts   *JetStreamOptions
	logger *slog.Logger
}

func newJetStreamMirror(ctx context.Context, opts *JetStreamOptions, logger *slog.Logger) (*jetStreamMirror, error) {
	cfg := *opts
	cfg.setDefaults()
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	natsOpts := []nats.Option{nats.Name("logwise-agent")}
	if cfg.User != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.User, cfg.Password))
	}
	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	m := &jetStreamMirror{
		conn:   conn,
		js:     js,
		opts:   &cfg,
		logger: logger,
	}
	if err := m.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *jetStreamMirror) Close() {
	if m.conn != nil {
		_ = m.conn.Drain()
		m.conn.Close()
	}
}

func (m *jetStreamMirror) ensureStream(ctx context.Context) error {
	cfg := &nats.StreamConfig{
		Name:       m.opts.Stream,
		Subjects:   []string{m.wildcard()},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxMsgs:    -1,
		MaxBytes:   m.opts.MaxBytes,
		Discard:    nats.DiscardOld,
		Duplicates: m.opts.DupeWindow,
	}
	if _, err := m.js.StreamInfo(cfg.Name, nats.Context(ctx)); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			_, addErr := m.js.AddStream(cfg, nats.Context(ctx))
			return addErr
		}
		return err
	}
	_, err := m.js.UpdateStream(cfg, nats.Context(ctx))
	return err
}

func (m *jetStreamMirror) hydrate(ctx context.Context, st *Store) error {
	sub, err := m.js.PullSubscribe(
		m.wildcard(),
		"",
		nats.BindStream(m.opts.Stream),
		nats.DeliverAll(),
		nats.AckExplicit(),
	)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()
	return m.drain(ctx, sub, func(msg *nats.Msg) error {
		e, err := decodeEntry(msg.Data)
		if err != nil {
			m.logger.Error("history replay decode", "err", err)
			return msg.Ack()
		}
		st.applyReplayed(e)
		return msg.Ack()
	})
}

func (m *jetStreamMirror) drain(ctx context.Context, sub *nats.Subscription, handler func(*nats.Msg) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := sub.Fetch(64, nats.MaxWait(500*time.Millisecond))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		for _, msg := range msgs {
			if err := handler(msg); err != nil {
				return err
			}
		}
		if len(msgs) == 0 {
			return nil
		}
	}
}

func (m *jetStreamMirror) publish(e Entry) error {
	payload, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = m.js.Publish(m.subject(e), payload, nats.MsgId("exec:"+e.ID))
	return err
}

func encodeEntry(e Entry) ([]byte, error) {
	s, err := e.toStruct()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func decodeEntry(data []byte) (Entry, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Entry{}, err
	}
	return entryFromStruct(&s)
}

func (m *jetStreamMirror) subject(e Entry) string {
	outcome := strings.TrimSpace(string(e.Outcome))
	if outcome == "" {
		outcome = "unknown"
	}
	return fmt.Sprintf("%s.executions.%s", m.opts.SubjectPrefix, outcome)
}

func (m *jetStreamMirror) wildcard() string {
	return fmt.Sprintf("%s.executions.*", m.opts.SubjectPrefix)
}
