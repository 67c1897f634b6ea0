package mathchat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "dispatch channel closed without a message")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the model message")
		return Message{}
	}
}

func TestNewStore_Greeting(t *testing.T) {
	store := NewStore(&MockGenerator{})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, GreetingID, msgs[0].ID)
	assert.Equal(t, RoleModel, msgs[0].Role)
	assert.Equal(t, Greeting, msgs[0].Content)
	assert.Equal(t, KindText, msgs[0].Kind)
	assert.False(t, store.Pending())
}

func TestStore_Dispatch_EmptyTurn(t *testing.T) {
	called := false
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			called = true
			return "", nil
		},
	})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, ch, err := store.Dispatch(context.Background(), Turn{Text: text})
		assert.ErrorIs(t, err, ErrEmptyTurn)
		assert.Nil(t, ch)
	}

	assert.Len(t, store.Messages(), 1)
	assert.False(t, store.Pending())
	assert.False(t, called)
}

func TestStore_Dispatch_Success(t *testing.T) {
	var gotPrompt string
	var gotImage *InputImage
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			gotPrompt = promptText
			gotImage = image
			return "UEFZTE9BRA==", nil
		},
	})

	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "Solve for x: 2x=4"})
	require.NoError(t, err)

	reply := receive(t, ch)
	assert.Equal(t, "data:image/png;base64,UEFZTE9BRA==", reply.Content)
	assert.Equal(t, KindImage, reply.Kind)
	assert.True(t, reply.IsImage())

	_, open := <-ch
	assert.False(t, open, "channel must close after the reply")

	assert.Equal(t, "Solve for x: 2x=4", gotPrompt)
	assert.Nil(t, gotImage)
	assert.False(t, store.Pending())

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "Solve for x: 2x=4", msgs[1].Content)
	assert.Empty(t, msgs[1].Image)
	assert.Equal(t, RoleModel, msgs[2].Role)
	assert.Equal(t, reply.ID, msgs[2].ID)
	assert.NotEqual(t, msgs[1].ID, msgs[2].ID)
}

func TestStore_Dispatch_ImageOnlyUsesFallbackPrompt(t *testing.T) {
	var gotPrompt string
	var gotImage *InputImage
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			gotPrompt = promptText
			gotImage = image
			return "eA==", nil
		},
	})

	upload := &InputImage{Data: []byte("png-bytes"), MIMEType: "image/png"}
	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "", Image: upload})
	require.NoError(t, err)
	receive(t, ch)

	assert.Equal(t, "Solve the problem in the image.", gotPrompt)
	require.NotNil(t, gotImage)
	assert.Equal(t, upload.Data, gotImage.Data)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Solve the problem in the image.", msgs[1].Content)
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", msgs[1].Image)
}

func TestStore_Dispatch_WhitespaceWithImageUsesFallbackPrompt(t *testing.T) {
	var gotPrompt string
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			gotPrompt = promptText
			return "eA==", nil
		},
	})

	user, ch, err := store.Dispatch(context.Background(), Turn{
		Text:  "  \n",
		Image: &InputImage{Data: []byte("x"), MIMEType: "image/png"},
	})
	require.NoError(t, err)
	receive(t, ch)

	assert.Equal(t, FallbackPrompt, gotPrompt)
	assert.Equal(t, FallbackPrompt, user.Content)
}

func TestStore_Dispatch_ReturnsAppendedUserMessage(t *testing.T) {
	var store *Store
	store = NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			// another user message lands while this turn is in flight
			assert.NoError(t, store.Append(Message{Role: RoleUser, Content: "later"}))
			return "eA==", nil
		},
	})

	user, ch, err := store.Dispatch(context.Background(), Turn{Text: "mine"})
	require.NoError(t, err)
	receive(t, ch)

	msgs := store.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, msgs[1], user)
	assert.Equal(t, "mine", user.Content)
	assert.Equal(t, "later", msgs[2].Content)
}

func TestStore_Dispatch_GenerationFailure(t *testing.T) {
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			return "", &GenerationError{Err: ErrNoImage}
		},
	})

	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "draw nothing"})
	require.NoError(t, err)

	reply := receive(t, ch)
	assert.Equal(t, RoleModel, reply.Role)
	assert.Equal(t, KindError, reply.Kind)
	assert.True(t, reply.IsError())
	assert.False(t, reply.IsImage())
	assert.Contains(t, reply.Content, "No image was generated")
	assert.Equal(t, "I encountered an error. Failed to process your request: No image was generated in the API response.", reply.Content)
	assert.False(t, store.Pending())

	// the store stays usable after a failure
	_, ch, err = store.Dispatch(context.Background(), Turn{Text: "again"})
	require.NoError(t, err)
	receive(t, ch)
	assert.Len(t, store.Messages(), 5)
}

func TestStore_Dispatch_RejectsWhilePending(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			calls++
			close(started)
			<-release
			return "eA==", nil
		},
	})

	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "first"})
	require.NoError(t, err)
	<-started
	assert.True(t, store.Pending())

	_, second, err := store.Dispatch(context.Background(), Turn{Text: "second"})
	assert.ErrorIs(t, err, ErrRequestPending)
	assert.Nil(t, second)
	assert.Len(t, store.Messages(), 2, "rejected dispatch must not append")

	close(release)
	receive(t, ch)

	assert.False(t, store.Pending())
	assert.Len(t, store.Messages(), 3)
	assert.Equal(t, 1, calls)
}

func TestStore_Dispatch_PanicClearsPending(t *testing.T) {
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			panic("generator exploded")
		},
	})

	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "1+1"})
	require.NoError(t, err)

	reply := receive(t, ch)
	assert.Equal(t, KindError, reply.Kind)
	assert.Contains(t, reply.Content, "generator exploded")
	assert.False(t, store.Pending())
}

func TestStore_Dispatch_DetachedFromContext(t *testing.T) {
	release := make(chan struct{})
	var genErr error
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			<-release
			genErr = ctx.Err()
			return "eA==", nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	_, ch, err := store.Dispatch(ctx, Turn{Text: "1+1"})
	require.NoError(t, err)
	cancel()
	close(release)

	reply := receive(t, ch)
	assert.NoError(t, genErr)
	assert.Equal(t, KindImage, reply.Kind)
}

type recordingStorage struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingStorage) SaveFile(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.paths = append(r.paths, path)
	return "/attachments/" + path, nil
}

func TestStore_Dispatch_AttachmentStorage(t *testing.T) {
	storage := &recordingStorage{}
	store := NewStore(&MockGenerator{}, WithAttachmentStorage(storage))

	_, ch, err := store.Dispatch(context.Background(), Turn{
		Text:  "what is this?",
		Image: &InputImage{Data: []byte("jpg"), MIMEType: "image/jpeg"},
	})
	require.NoError(t, err)
	receive(t, ch)

	msgs := store.Messages()
	require.Len(t, storage.paths, 1)
	assert.Equal(t, "uploads/"+msgs[1].ID+".jpg", storage.paths[0])
	assert.Equal(t, "/attachments/uploads/"+msgs[1].ID+".jpg", msgs[1].Image)
}

func TestStore_Dispatch_AttachmentStorageFailureInlines(t *testing.T) {
	storage := &recordingStorage{err: errors.New("disk full")}
	store := NewStore(&MockGenerator{}, WithAttachmentStorage(storage))

	_, ch, err := store.Dispatch(context.Background(), Turn{
		Image: &InputImage{Data: []byte("x"), MIMEType: "image/webp"},
	})
	require.NoError(t, err)
	receive(t, ch)

	assert.Equal(t, "data:image/webp;base64,eA==", store.Messages()[1].Image)
}

func TestStore_Append(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewStore(&MockGenerator{}, WithClock(func() time.Time { return fixed }), WithGreeting("hi"))

	require.NoError(t, store.Append(Message{Role: RoleModel, Content: "data:image/png;base64,AAAA"}))
	require.NoError(t, store.Append(Message{Role: RoleUser, Content: "data:image/png;base64,AAAA"}))

	assert.Error(t, store.Append(Message{Role: "system", Content: "x"}))
	assert.Error(t, store.Append(Message{Role: RoleUser}))

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, KindImage, msgs[1].Kind)
	assert.Equal(t, KindText, msgs[2].Kind, "user content is never a solution image")
	assert.Equal(t, fixed, msgs[1].CreatedAt)
	assert.NotEmpty(t, msgs[1].ID)

	got, ok := store.Message(msgs[1].ID)
	assert.True(t, ok)
	assert.Equal(t, msgs[1], got)

	_, ok = store.Message("missing")
	assert.False(t, ok)
}

func TestStore_Append_Kind(t *testing.T) {
	const (
		dataURI = "data:image/png;base64,eA=="
		failure = "I encountered an error. boom"
	)

	tests := []struct {
		name    string
		msg     Message
		want    Kind
		wantErr bool
	}{
		{"model image derived", Message{Role: RoleModel, Content: dataURI}, KindImage, false},
		{"model image tagged", Message{Role: RoleModel, Content: dataURI, Kind: KindImage}, KindImage, false},
		{"model text derived", Message{Role: RoleModel, Content: "hello"}, KindText, false},
		{"model error tagged", Message{Role: RoleModel, Content: failure, Kind: KindError}, KindError, false},
		{"user text", Message{Role: RoleUser, Content: "2+2", Kind: KindText}, KindText, false},
		{"user data uri is text", Message{Role: RoleUser, Content: dataURI}, KindText, false},
		{"image tag on text", Message{Role: RoleModel, Content: failure, Kind: KindImage}, "", true},
		{"error tag on image", Message{Role: RoleModel, Content: dataURI, Kind: KindError}, "", true},
		{"text tag on image", Message{Role: RoleModel, Content: dataURI, Kind: KindText}, "", true},
		{"image tag on user", Message{Role: RoleUser, Content: dataURI, Kind: KindImage}, "", true},
		{"error tag on user", Message{Role: RoleUser, Content: failure, Kind: KindError}, "", true},
		{"unknown kind", Message{Role: RoleModel, Content: "hello", Kind: "video"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(&MockGenerator{})
			err := store.Append(tt.msg)

			msgs := store.Messages()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrKindMismatch)
				assert.Len(t, msgs, 1, "rejected message must not be appended")
				return
			}
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			got := msgs[1]
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, got.Kind == KindImage, got.IsImage())
		})
	}
}

func TestStore_MessagesReturnsCopy(t *testing.T) {
	store := NewStore(&MockGenerator{})
	msgs := store.Messages()
	msgs[0].Content = "tampered"
	assert.Equal(t, Greeting, store.Messages()[0].Content)
}

func TestStore_Subscribe(t *testing.T) {
	release := make(chan struct{})
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			<-release
			return "eA==", nil
		},
	})

	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "1+1"})
	require.NoError(t, err)

	snap := <-updates
	assert.True(t, snap.Pending)
	assert.Len(t, snap.Messages, 2)

	close(release)
	receive(t, ch)

	snap = <-updates
	assert.False(t, snap.Pending)
	assert.Len(t, snap.Messages, 3)
}

func TestStore_Subscribe_LatestWins(t *testing.T) {
	store := NewStore(&MockGenerator{})
	updates, unsubscribe := store.Subscribe()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(Message{Role: RoleUser, Content: "m"}))
	}

	snap := <-updates
	assert.Len(t, snap.Messages, 6)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)

	require.NoError(t, store.Append(Message{Role: RoleUser, Content: "after"}))
}

type countingObserver struct {
	mu       sync.Mutex
	rejected []error
	started  int
	finished []Kind
}

func (c *countingObserver) DispatchRejected(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, reason)
}

func (c *countingObserver) GenerationStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingObserver) GenerationFinished(reply Message, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = append(c.finished, reply.Kind)
}

func TestStore_Observer(t *testing.T) {
	obs := &countingObserver{}
	store := NewStore(&MockGenerator{
		GenerateFunc: func(ctx context.Context, promptText string, image *InputImage) (string, error) {
			if promptText == "fail" {
				return "", errors.New("boom")
			}
			return "eA==", nil
		},
	}, WithObserver(obs))

	_, _, err := store.Dispatch(context.Background(), Turn{})
	require.ErrorIs(t, err, ErrEmptyTurn)

	_, ch, err := store.Dispatch(context.Background(), Turn{Text: "ok"})
	require.NoError(t, err)
	receive(t, ch)

	_, ch, err = store.Dispatch(context.Background(), Turn{Text: "fail"})
	require.NoError(t, err)
	receive(t, ch)

	store.Wait()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []error{ErrEmptyTurn}, obs.rejected)
	assert.Equal(t, 2, obs.started)
	assert.Equal(t, []Kind{KindImage, KindError}, obs.finished)
}
