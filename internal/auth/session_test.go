package auth

import (
	"testing"

	"kart-checkout/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSession_SignedOut(t *testing.T) {
	s := NewTokenSession("", nil)

	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
	assert.Nil(t, s.Customer())
}

func TestTokenSession_Establish(t *testing.T) {
	s := NewTokenSession("", nil)

	s.Establish("tok-123", model.Customer{ID: "c-1", Email: "anna@example.at", FirstName: "Anna"})

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "tok-123", s.Token())
	require.NotNil(t, s.Customer())
	assert.Equal(t, "c-1", s.Customer().ID)
}

func TestTokenSession_CustomerIsCopy(t *testing.T) {
	s := NewTokenSession("tok", &model.Customer{ID: "c-1"})

	c := s.Customer()
	c.ID = "changed"

	assert.Equal(t, "c-1", s.Customer().ID)
}

func TestTokenSession_SetCustomer(t *testing.T) {
	s := NewTokenSession("tok", nil)

	s.SetCustomer(model.Customer{ID: "c-9", DefaultCity: "Graz"})

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "Graz", s.Customer().DefaultCity)
}
