package mail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	failures []error
	calls    int
	sent     []Message
	at       []time.Time
}

func (f *fakeTransport) Deliver(_ context.Context, _ Address, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.at = append(f.at, time.Now())
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testMsg() Message {
	return Message{To: []string{"jane@x.com"}, Subject: "hello", Text: "body"}
}

func newTestSender(t *testing.T, tr Transport, attempts int, delay time.Duration) *Sender {
	t.Helper()
	s, err := NewSender(tr, Config{From: Address{Name: "Lernio", Email: "noreply@lernio.dev"}, Attempts: attempts, BaseDelay: delay}, nil)
	require.NoError(t, err)
	return s
}

func TestSendSucceedsFirstTry(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSender(t, tr, 3, time.Millisecond)

	require.NoError(t, s.Send(context.Background(), testMsg()))
	assert.Equal(t, 1, tr.calls)
	assert.Len(t, tr.sent, 1)
}

func TestSendRetriesWithGrowingDelay(t *testing.T) {
	boom := errors.New("connection reset")
	tr := &fakeTransport{failures: []error{boom, boom, nil}}
	s := newTestSender(t, tr, 3, 10*time.Millisecond)

	require.NoError(t, s.Send(context.Background(), testMsg()))
	require.Equal(t, 3, tr.calls)

	first := tr.at[1].Sub(tr.at[0])
	second := tr.at[2].Sub(tr.at[1])
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)
	assert.GreaterOrEqual(t, second, 20*time.Millisecond)
}

func TestSendGivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("relay down")
	tr := &fakeTransport{failures: []error{boom, boom, boom, boom}}
	s := newTestSender(t, tr, 3, time.Millisecond)

	err := s.Send(context.Background(), testMsg())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, tr.calls)
}

func TestSendStopsOnPermanentError(t *testing.T) {
	tr := &fakeTransport{failures: []error{ErrPermanent}}
	s := newTestSender(t, tr, 5, time.Millisecond)

	err := s.Send(context.Background(), testMsg())
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, tr.calls)
}

func TestSendStopsWhenContextEnds(t *testing.T) {
	boom := errors.New("timeout")
	tr := &fakeTransport{failures: []error{boom, boom, boom}}
	s := newTestSender(t, tr, 3, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Send(ctx, testMsg())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, tr.calls)
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSender(t, tr, 3, time.Millisecond)

	err := s.Send(context.Background(), Message{Subject: "x", Text: "y"})
	assert.ErrorIs(t, err, ErrPermanent)
	err = s.Send(context.Background(), Message{To: []string{"a@b.c"}, Subject: "x\r\nBcc: evil@x.com", Text: "y"})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Zero(t, tr.calls)
}

func TestNewTransportSelection(t *testing.T) {
	tr, err := NewTransport(Config{Provider: ProviderLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogTransport{}, tr)

	tr, err = NewTransport(Config{Provider: ProviderSMTP, SMTP: SMTPConfig{Host: "smtp.example.com"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPTransport{}, tr)

	tr, err = NewTransport(Config{Provider: ProviderSendGrid, SendGridAPIKey: "SG.key"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SendGridTransport{}, tr)

	_, err = NewTransport(Config{Provider: ProviderSMTP}, nil)
	assert.Error(t, err)
	_, err = NewTransport(Config{Provider: "pigeon"}, nil)
	assert.Error(t, err)
}

func TestNewSenderRequiresFrom(t *testing.T) {
	_, err := NewSender(&fakeTransport{}, Config{}, nil)
	assert.Error(t, err)
}
