package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/telegram/handlers"
	"github.com/futig/compliance-rag/internal/telegram/render"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type recordingHandler struct {
	state    string
	messages []*handlers.Message
	err      error
}

func (h *recordingHandler) Handle(_ context.Context, msg *handlers.Message) error {
	h.messages = append(h.messages, msg)
	return h.err
}

func (h *recordingHandler) GetState() string { return h.state }

func testConfig() *config.TelegramConfig {
	return &config.TelegramConfig{RateLimitPerMinute: 60, RateLimitBurst: 20, ShutdownTimeout: 1}
}

func message(userID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		end := len(text)
		for i, r := range text {
			if r == ' ' {
				end = i
				break
			}
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return msg
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *recordingHandler, *recordingHandler) {
	t.Helper()
	api := &fakeAPI{}
	b := newBot(api, testConfig(), nil, zap.NewNop())
	t.Cleanup(b.rateLimitMW.Stop)

	questions := &recordingHandler{state: handlers.HandlerStateQuestion}
	callbacks := &recordingHandler{state: handlers.HandlerStateCallback}
	b.RegisterHandler(questions)
	b.RegisterHandler(callbacks)
	return b, api, questions, callbacks
}

func TestHandleUpdate_TextGoesToQuestionHandler(t *testing.T) {
	b, _, questions, _ := newTestBot(t)

	b.handleUpdateWithMiddleware(context.Background(), tgbotapi.Update{Message: message(42, "Who approves exceptions?")})

	require.Len(t, questions.messages, 1)
	assert.Equal(t, int64(42), questions.messages[0].UserID)
	assert.Equal(t, "Who approves exceptions?", questions.messages[0].Text)
}

func TestHandleUpdate_Commands(t *testing.T) {
	b, api, questions, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, tgbotapi.Update{Message: message(1, "/start")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: message(1, "/help")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: message(1, "/nope")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: message(1, "/ask What is PHI?")})

	assert.Equal(t, []string{render.MsgWelcome, render.MsgHelp, render.MsgUnknownCommand}, api.sent)
	require.Len(t, questions.messages, 1)
	assert.Equal(t, "What is PHI?", questions.messages[0].Text)
}

func TestHandleUpdate_CallbackQuery(t *testing.T) {
	b, _, _, callbacks := newTestBot(t)

	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 7},
		Message: message(7, "answer"),
		Data:    "details:q-1",
	}})

	require.Len(t, callbacks.messages, 1)
	assert.Equal(t, "details:q-1", callbacks.messages[0].CallbackData)
	assert.Equal(t, "cb-1", callbacks.messages[0].CallbackID)
}

func TestHandleUpdate_HandlerErrorIsReported(t *testing.T) {
	b, api, questions, _ := newTestBot(t)
	questions.err = errors.New("boom")

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: message(1, "question")})

	assert.Equal(t, []string{render.ErrGeneric}, api.sent)
}

func TestStop_ReleasesPipeline(t *testing.T) {
	api := &fakeAPI{}
	released := false
	b := newBot(api, testConfig(), func(context.Context) error {
		released = true
		return nil
	}, zap.NewNop())

	require.NoError(t, b.Stop())
	assert.True(t, released)
}
