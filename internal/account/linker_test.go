package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kart-checkout/internal/auth"
	"kart-checkout/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRegistry is a mock implementation of Registry.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistry) RegisterCustomer(ctx context.Context, req model.RegisterRequest, idempotencyKey string) (*model.Registration, error) {
	args := m.Called(ctx, req, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}

func contact() model.Contact {
	return model.Contact{Name: "Anna Maria Huber", Email: "Anna@Example.at ", Phone: "0660 1234567"}
}

func creds() model.AccountRequest {
	return model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"}
}

func registration() *model.Registration {
	return &model.Registration{
		Token:    "tok-1",
		Customer: model.Customer{ID: "c-1", Email: "anna@example.at", FirstName: "Anna", LastName: "Maria Huber"},
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Anna Huber", "Anna", "Huber"},
		{"Anna Maria Huber", "Anna", "Maria Huber"},
		{"  Cher  ", "Cher", ""},
		{"Anna\u00a0Huber", "Anna", "Huber"},
		{"Anna\r\nHuber", "Anna", "Huber"},
		{"Anna\u2003 Maria Huber", "Anna", "Maria Huber"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestLinker_Register_EstablishesSession(t *testing.T) {
	reg := new(MockRegistry)
	reg.On("RegisterCustomer", mock.Anything, model.RegisterRequest{
		Email:     "Anna@Example.at",
		Password:  "secret1",
		FirstName: "Anna",
		LastName:  "Maria Huber",
		Phone:     "0660 1234567",
	}, mock.AnythingOfType("string")).Return(registration(), nil).Once()

	session := auth.NewTokenSession("", nil)
	l := NewLinker(reg, session, zerolog.Nop())

	got, err := l.Register(context.Background(), contact(), creds())

	require.NoError(t, err)
	assert.Equal(t, "c-1", got.Customer.ID)
	assert.True(t, session.IsAuthenticated())
	assert.Equal(t, "tok-1", session.Token())
	reg.AssertExpectations(t)
}

func TestLinker_Register_AtMostOnce(t *testing.T) {
	reg := new(MockRegistry)
	reg.On("RegisterCustomer", mock.Anything, mock.Anything, mock.Anything).Return(registration(), nil).Once()
	l := NewLinker(reg, auth.NewTokenSession("", nil), zerolog.Nop())

	first, err := l.Register(context.Background(), contact(), creds())
	require.NoError(t, err)
	second, err := l.Register(context.Background(), contact(), creds())
	require.NoError(t, err)

	assert.Same(t, first, second)
	reg.AssertNumberOfCalls(t, "RegisterCustomer", 1)
}

func TestLinker_Register_RetryReusesIdempotencyKey(t *testing.T) {
	var keys []string
	reg := new(MockRegistry)
	reg.On("RegisterCustomer", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { keys = append(keys, args.String(2)) }).
		Return(nil, &model.NetworkError{Op: "register customer", Err: errors.New("timeout")}).Once()
	reg.On("RegisterCustomer", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { keys = append(keys, args.String(2)) }).
		Return(registration(), nil).Once()
	l := NewLinker(reg, auth.NewTokenSession("", nil), zerolog.Nop())

	_, err := l.Register(context.Background(), contact(), creds())
	require.Error(t, err)
	_, err = l.Register(context.Background(), contact(), creds())
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestLinker_Register_ConcurrentCallsShareRequest(t *testing.T) {
	release := make(chan struct{})
	reg := new(MockRegistry)
	reg.On("RegisterCustomer", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(registration(), nil)
	l := NewLinker(reg, auth.NewTokenSession("", nil), zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]*model.Registration, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := l.Register(context.Background(), contact(), creds())
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "c-1", r.Customer.ID)
	}
	// Late callers may hit the cached result instead of joining the flight.
	assert.LessOrEqual(t, len(reg.Calls), 4)
	assert.GreaterOrEqual(t, len(reg.Calls), 1)
}

func TestLinker_Register_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "server detail",
			err:     &model.UpstreamError{Op: "register customer", Status: 400, Detail: "Email already registered"},
			wantMsg: "Email already registered",
		},
		{
			name:    "no detail",
			err:     &model.UpstreamError{Op: "register customer", Status: 500},
			wantMsg: MsgRegistrationFailed,
		},
		{
			name:    "network",
			err:     &model.NetworkError{Op: "register customer", Err: errors.New("refused")},
			wantMsg: MsgRegistrationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := new(MockRegistry)
			reg.On("RegisterCustomer", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			session := auth.NewTokenSession("", nil)
			l := NewLinker(reg, session, zerolog.Nop())

			_, err := l.Register(context.Background(), contact(), creds())

			var regErr *model.RegistrationError
			require.ErrorAs(t, err, &regErr)
			assert.Equal(t, tt.wantMsg, regErr.Message)
			assert.ErrorIs(t, err, tt.err)
			assert.False(t, session.IsAuthenticated())
		})
	}
}

func TestLinker_CheckEmail(t *testing.T) {
	reg := new(MockRegistry)
	reg.On("EmailExists", mock.Anything, "anna@example.at").Return(true, nil)
	l := NewLinker(reg, auth.NewTokenSession("", nil), zerolog.Nop())

	exists, err := l.CheckEmail(context.Background(), " anna@example.at ")

	require.NoError(t, err)
	assert.True(t, exists)
}
