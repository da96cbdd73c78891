package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifohub/patient-comms/internal/telegram"
)

type fakeResolver struct {
	sub Subject
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, phoneNumber string) (Subject, error) {
	if f.err != nil {
		return Subject{}, f.err
	}
	return f.sub, nil
}

type memChallenges struct {
	byUser map[string]*Challenge
}

func newMemChallenges() *memChallenges {
	return &memChallenges{byUser: make(map[string]*Challenge)}
}

func (m *memChallenges) Put(ctx context.Context, ch *Challenge) error {
	cp := *ch
	m.byUser[ch.UserID] = &cp
	return nil
}

func (m *memChallenges) Get(ctx context.Context, userID string) (*Challenge, error) {
	ch, ok := m.byUser[userID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memChallenges) Delete(ctx context.Context, userID string) error {
	delete(m.byUser, userID)
	return nil
}

type fakeChat struct {
	sent    []telegram.SendMessageRequest
	sendErr error
}

func (f *fakeChat) SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

type fakeMinter struct{ minted []string }

func (f *fakeMinter) Mint(userID string) (string, error) {
	f.minted = append(f.minted, userID)
	return "token-for-" + userID, nil
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func sentCode(t *testing.T, chat *fakeChat) string {
	t.Helper()
	require.NotEmpty(t, chat.sent)
	match := codePattern.FindStringSubmatch(chat.sent[len(chat.sent)-1].Text)
	require.Len(t, match, 2, "code message should carry a 6-digit code")
	return match[1]
}

func newTestService(t *testing.T, resolver Resolver, chat *fakeChat) (*Service, *memChallenges, *fakeMinter) {
	t.Helper()
	challenges := newMemChallenges()
	minter := &fakeMinter{}
	svc := NewService(ServiceConfig{
		Resolver:   resolver,
		Challenges: challenges,
		Chat:       chat,
		Minter:     minter,
		CodeTTL:    5 * time.Minute,
	})
	return svc, challenges, minter
}

func TestRequestIssuesCodeToLinkedChat(t *testing.T) {
	chat := &fakeChat{}
	svc, challenges, _ := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1", ChatID: 555}}, chat)

	err := svc.Request(context.Background(), "+998937489141")
	require.NoError(t, err)

	require.Len(t, chat.sent, 1)
	assert.Equal(t, int64(555), chat.sent[0].ChatID)

	stored, err := challenges.Get(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.Equal(t, sentCode(t, chat), stored.Code)
}

func TestRequestFailsWithoutLinkedChat(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1"}}, &fakeChat{})

	err := svc.Request(context.Background(), "+998937489141")
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeFailedPrecondition, oerr.Code)
}

func TestRequestReportsInternalOnSendFailure(t *testing.T) {
	chat := &fakeChat{sendErr: errors.New("boom")}
	svc, _, _ := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1", ChatID: 1}}, chat)

	err := svc.Request(context.Background(), "+998937489141")
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeInternal, oerr.Code)
}

func TestVerifyHonorsExpiryWindow(t *testing.T) {
	chat := &fakeChat{}
	svc, _, minter := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1", ChatID: 1}}, chat)

	issued := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return issued })
	require.NoError(t, svc.Request(context.Background(), "+998937489141"))
	code := sentCode(t, chat)

	svc.WithClock(func() time.Time { return issued.Add(4*time.Minute + 59*time.Second) })
	token, err := svc.Verify(context.Background(), "+998937489141", code)
	require.NoError(t, err)
	assert.Equal(t, "token-for-prof-1", token)
	assert.Equal(t, []string{"prof-1"}, minter.minted)

	// Fresh challenge, then check the far side of the window.
	require.NoError(t, svc.Request(context.Background(), "+998937489141"))
	code = sentCode(t, chat)

	svc.WithClock(func() time.Time { return issued.Add(5*time.Minute + 1*time.Second) })
	_, err = svc.Verify(context.Background(), "+998937489141", code)
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeDeadlineExceeded, oerr.Code)
}

func TestSecondRequestInvalidatesFirstCode(t *testing.T) {
	chat := &fakeChat{}
	svc, _, _ := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1", ChatID: 1}}, chat)

	require.NoError(t, svc.Request(context.Background(), "+998937489141"))
	first := sentCode(t, chat)

	require.NoError(t, svc.Request(context.Background(), "+998937489141"))
	second := sentCode(t, chat)

	if first != second {
		_, err := svc.Verify(context.Background(), "+998937489141", first)
		var oerr *Error
		require.ErrorAs(t, err, &oerr)
		assert.Equal(t, CodeInvalidArgument, oerr.Code)
	}

	token, err := svc.Verify(context.Background(), "+998937489141", second)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1", ChatID: 1}}, &fakeChat{})

	_, err := svc.Verify(context.Background(), "+998937489141", "123456")
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeInvalidArgument, oerr.Code)
}

func TestVerifyWrongCode(t *testing.T) {
	chat := &fakeChat{}
	svc, challenges, _ := newTestService(t, &fakeResolver{sub: Subject{UserID: "prof-1", ChatID: 1}}, chat)

	require.NoError(t, svc.Request(context.Background(), "+998937489141"))
	code := sentCode(t, chat)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err := svc.Verify(context.Background(), "+998937489141", wrong)
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeInvalidArgument, oerr.Code)

	// The live challenge survives a bad guess.
	_, err = challenges.Get(context.Background(), "prof-1")
	require.NoError(t, err)
}

func TestVerifyUnknownSubject(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeResolver{err: E(CodeNotFound, "no account")}, &fakeChat{})

	_, err := svc.Verify(context.Background(), "+998937489141", "123456")
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeNotFound, oerr.Code)
}
