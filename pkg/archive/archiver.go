package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dbechrd/slimerrt/pkg/chat"
	"github.com/google/uuid"
)

const (
	chatPrefix    = "chat/"
	chatExtension = ".slog.zst"
)

// Archiver saves and loads chat transcripts in a Store.
type Archiver struct {
	store  Store
	now    func() time.Time
	newID  func() uuid.UUID
	logger *slog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock sets the clock used to date object keys.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// WithIDGenerator sets the source of object key ids.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(a *Archiver) {
		a.newID = newID
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) {
		a.logger = l
	}
}

// New creates an Archiver over store.
func New(store Store, opts ...Option) *Archiver {
	a := &Archiver{
		store:  store,
		now:    time.Now,
		newID:  uuid.New,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "archive")
	return a
}

// SaveChat writes lines as a new transcript and returns its key. An empty
// transcript is not written and returns an empty key.
func (a *Archiver) SaveChat(ctx context.Context, lines []chat.Line) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}
	data, err := EncodeTranscript(lines)
	if err != nil {
		return "", err
	}

	key := a.chatKey()
	if err := a.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	a.logger.Info("chat transcript archived", "key", key, "lines", len(lines), "bytes", len(data))
	return key, nil
}

// LoadChat reads the transcript at key.
func (a *Archiver) LoadChat(ctx context.Context, key string) ([]chat.Line, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	lines, err := DecodeTranscript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return lines, nil
}

// ListChat returns the archived transcripts. A zero day lists every
// transcript; otherwise only those saved on that UTC day.
func (a *Archiver) ListChat(ctx context.Context, day time.Time) ([]Object, error) {
	prefix := chatPrefix
	if !day.IsZero() {
		prefix += day.UTC().Format("2006/01/02/")
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := objects[:0]
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, chatExtension) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (a *Archiver) chatKey() string {
	return chatPrefix + a.now().UTC().Format("2006/01/02/") + a.newID().String() + chatExtension
}
