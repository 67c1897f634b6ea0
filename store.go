package mathchat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot is a consistent view of the conversation for rendering.
type Snapshot struct {
	Messages []Message `json:"messages"`
	Pending  bool      `json:"pending"`
}

// Observer receives store lifecycle events. Used for metrics.
type Observer interface {
	DispatchRejected(reason error)
	GenerationStarted()
	GenerationFinished(reply Message, elapsed time.Duration)
}

// Store is the append-only conversation plus the single pending flag.
//
// Dispatch is the only writer of model replies; a second Dispatch while a
// generation is in flight is rejected rather than queued.
type Store struct {
	gen      Generator
	storage  Storage
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
	greeting string

	mu          sync.Mutex
	messages    []Message
	pending     bool
	subscribers map[int]chan Snapshot
	nextSub     int

	inflight sync.WaitGroup
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithStoreLogger sets a structured logger for the store.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithAttachmentStorage sets where uploaded images are kept for re-display.
func WithAttachmentStorage(storage Storage) StoreOption {
	return func(s *Store) {
		s.storage = storage
	}
}

// WithGreeting overrides the seeded model greeting.
func WithGreeting(greeting string) StoreOption {
	return func(s *Store) {
		if greeting != "" {
			s.greeting = greeting
		}
	}
}

// WithClock sets the time source used for message timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithObserver registers an Observer for dispatch events.
func WithObserver(observer Observer) StoreOption {
	return func(s *Store) {
		s.observer = observer
	}
}

// NewStore creates a conversation seeded with the model greeting.
func NewStore(gen Generator, opts ...StoreOption) *Store {
	s := &Store{
		gen:         gen,
		logger:      zap.NewNop(),
		now:         time.Now,
		greeting:    Greeting,
		subscribers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.messages = []Message{{
		ID:        GreetingID,
		Role:      RoleModel,
		Content:   s.greeting,
		Kind:      KindText,
		CreatedAt: s.now(),
	}}

	return s
}

// Append adds msg to the end of the conversation. ID and CreatedAt are
// filled in when empty. Kind is derived from role and content; a Kind that
// contradicts them is rejected with ErrKindMismatch.
func (s *Store) Append(msg Message) error {
	if msg.Role != RoleUser && msg.Role != RoleModel {
		return fmt.Errorf("invalid role %q", msg.Role)
	}
	if msg.Content == "" {
		return errors.New("message content is required")
	}
	kind, err := resolveKind(msg.Role, msg.Content, msg.Kind)
	if err != nil {
		return err
	}
	msg.Kind = kind
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.notifyLocked()
	return nil
}

// Dispatch submits a turn. It returns ErrEmptyTurn or ErrRequestPending
// without touching the conversation; otherwise it appends the user message,
// marks the store pending and generates the reply in the background.
//
// It returns the user message it appended and a channel that yields the
// single model message once that has been appended, then closes.
// Cancelling ctx does not cancel the generation.
func (s *Store) Dispatch(ctx context.Context, turn Turn) (Message, <-chan Message, error) {
	if turn.IsEmpty() {
		return Message{}, nil, s.reject(ErrEmptyTurn)
	}
	if s.Pending() {
		return Message{}, nil, s.reject(ErrRequestPending)
	}

	prompt := turn.EffectivePrompt()
	userMsg := Message{
		ID:      newMessageID(),
		Role:    RoleUser,
		Content: prompt,
		Kind:    KindText,
	}
	if turn.Image != nil {
		ref, err := SaveUpload(ctx, s.storage, userMsg.ID, *turn.Image)
		if err != nil {
			s.logger.Warn("failed to store upload, inlining it", zap.Error(err))
			ref, _ = SaveUpload(ctx, nil, userMsg.ID, *turn.Image)
		}
		userMsg.Image = ref
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return Message{}, nil, s.reject(ErrRequestPending)
	}
	userMsg.CreatedAt = s.now()
	s.messages = append(s.messages, userMsg)
	s.pending = true
	s.inflight.Add(1)
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Debug("dispatching turn",
		zap.String("message_id", userMsg.ID),
		zap.Bool("has_image", turn.Image != nil),
	)
	if s.observer != nil {
		s.observer.GenerationStarted()
	}

	done := make(chan Message, 1)
	go s.run(context.WithoutCancel(ctx), prompt, turn.Image, done)
	return userMsg, done, nil
}

// run performs one generation and always clears the pending flag.
func (s *Store) run(ctx context.Context, prompt string, image *InputImage, done chan<- Message) {
	defer s.inflight.Done()
	defer close(done)

	start := time.Now()
	reply := s.solve(ctx, prompt, image)
	reply.ID = newMessageID()

	s.mu.Lock()
	reply.CreatedAt = s.now()
	s.messages = append(s.messages, reply)
	s.pending = false
	s.notifyLocked()
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.GenerationFinished(reply, time.Since(start))
	}
	done <- reply
}

// solve converts the generator outcome, including a panic, into a model message.
func (s *Store) solve(ctx context.Context, prompt string, image *InputImage) (reply Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("generator panicked", zap.Any("panic", r))
			reply = errorMessage(fmt.Errorf("%v", r))
		}
	}()

	payload, err := s.gen.Generate(ctx, prompt, image)
	if err != nil {
		s.logger.Info("turn failed", zap.Error(err))
		return errorMessage(err)
	}
	return Message{
		Role:    RoleModel,
		Content: solutionContent(payload),
		Kind:    KindImage,
	}
}

func errorMessage(err error) Message {
	return Message{
		Role:    RoleModel,
		Content: errorContent(err),
		Kind:    KindError,
	}
}

func (s *Store) reject(reason error) error {
	s.logger.Debug("dispatch rejected", zap.Error(reason))
	if s.observer != nil {
		s.observer.DispatchRejected(reason)
	}
	return reason
}

// Messages returns a copy of the conversation.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Message looks up a message by ID.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Pending reports whether a generation is in flight.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Snapshot returns the messages and pending flag read atomically.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every change.
// A slow subscriber only sees the latest snapshot. Call the returned func
// to unsubscribe.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until every in-flight generation has been appended.
func (s *Store) Wait() {
	s.inflight.Wait()
}

func (s *Store) copyLocked() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Messages: s.copyLocked(), Pending: s.pending}
}

// notifyLocked pushes the current snapshot to all subscribers without blocking.
func (s *Store) notifyLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// drop the stale snapshot, keep the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func newMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}
