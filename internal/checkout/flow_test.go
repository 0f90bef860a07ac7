package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kart-checkout/internal/auth"
	"kart-checkout/internal/model"
	"kart-checkout/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advanceTo moves a flow with valid data up to step.
func advanceTo(t *testing.T, f *Flow, step model.Step) {
	t.Helper()
	f.SetContact(validContact())
	f.SetShipping(validShipping("Österreich"))
	for f.State().Step < step {
		_, err := f.Advance(context.Background())
		require.NoError(t, err)
	}
}

func TestFlow_InitialState(t *testing.T) {
	b := newFakeBackend()
	f := newTestFlow(t, b, nil, lineItem("P1", "20.00", 2))

	s := f.State()

	assert.Equal(t, model.StepCart, s.Step)
	assert.Equal(t, "cart", s.StepName)
	assert.Empty(t, s.Errors)
	assert.True(t, dec("40").Equal(s.Cart.Subtotal))
	assert.Equal(t, model.DefaultCountry, s.Draft.ShippingAddress.Country)
	assert.True(t, s.Draft.BillingSameAsShipping)
	assert.True(t, dec("4.90").Equal(s.Shipping.Cost))
	assert.True(t, dec("10").Equal(s.RemainingForFree))
	assert.True(t, dec("44.90").Equal(s.Total))
	assert.Equal(t, []string{"Österreich", "Deutschland"}, s.Countries)
	assert.False(t, s.Authenticated)
}

func TestFlow_EmptyCartCannotAdvance(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil)

	s, err := f.Advance(context.Background())

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, model.StepCart, vErr.Step)
	assert.Equal(t, model.StepCart, s.Step)
	assert.True(t, s.Errors.Has(validation.FieldCart))
}

func TestFlow_ScenarioA_CouponAndFreeShipping(t *testing.T) {
	b := newFakeBackend()
	f := newTestFlow(t, b, nil, lineItem("P1", "100.00", 1))
	f.SetShipping(validShipping("Deutschland"))

	s, err := f.ApplyCoupon(context.Background(), "save10")
	require.NoError(t, err)

	require.NotNil(t, s.Coupon)
	assert.Equal(t, "SAVE10", s.Coupon.Code)
	assert.True(t, dec("10").Equal(s.Discount))
	assert.True(t, s.Shipping.IsFree)
	assert.True(t, s.Shipping.Cost.IsZero())
	assert.True(t, dec("90").Equal(s.Total), "total %s", s.Total)

	s, err = f.RemoveCoupon()
	require.NoError(t, err)
	assert.Nil(t, s.Coupon)
	assert.True(t, dec("100").Equal(s.Total))
}

func TestFlow_CouponRejectionKeepsStep(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "30.00", 1))
	advanceTo(t, f, model.StepShipping)

	s, err := f.ApplyCoupon(context.Background(), "NOPE")

	var rejection *model.CouponRejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "Coupon not found", s.CouponError)
	assert.Equal(t, model.StepShipping, s.Step)
	assert.Nil(t, s.Coupon)
}

func TestFlow_ScenarioB_ShortPostalBlocksShipping(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepShipping)

	details := validShipping("Österreich")
	details.Address.PostalCode = "12"
	f.SetShipping(details)

	s, err := f.Advance(context.Background())

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{validation.FieldPostal}, vErr.Fields.Fields())
	assert.Equal(t, model.StepShipping, s.Step)
	assert.True(t, s.Errors.Has(validation.FieldPostal))
}

func TestFlow_ScenarioC_AgeVerificationOnly(t *testing.T) {
	wine := lineItem("W1", "15.00", 1)
	wine.AlcoholContent = 12.5
	f := newTestFlow(t, newFakeBackend(), nil, wine)
	advanceTo(t, f, model.StepPayment)

	f.SetPayment(PaymentDetails{AgeVerified: false, TermsAccepted: true})
	s, err := f.Advance(context.Background())

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{validation.FieldAge}, s.Errors.Fields())
	assert.Equal(t, model.StepPayment, s.Step)
	assert.True(t, s.AgeVerificationRequired)
}

func TestFlow_ScenarioD_RegisteredEmailConflicts(t *testing.T) {
	b := newFakeBackend()
	b.emailExists["anna@example.at"] = true
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	f.SetAccount(&model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"})

	s, err := f.CheckEmail(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Email.Known)
	assert.True(t, s.Email.Exists)

	s, err = f.Advance(context.Background())

	var conflict *model.AccountConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "anna@example.at", conflict.Email)
	assert.Equal(t, model.StepContact, s.Step)
	assert.Equal(t, model.FieldConflict, s.Errors[validation.FieldEmail].Code)
	assert.Empty(t, b.registrations)
}

func TestFlow_OptingOutOfAccountClearsConflict(t *testing.T) {
	b := newFakeBackend()
	b.emailExists["anna@example.at"] = true
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	f.SetAccount(&model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"})
	_, _ = f.CheckEmail(context.Background())

	s, err := f.SetAccount(nil)
	require.NoError(t, err)
	assert.False(t, s.Errors.Has(validation.FieldEmail))

	s, err = f.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepShipping, s.Step)
}

func TestFlow_ContactRegistersAccountOnce(t *testing.T) {
	b := newFakeBackend()
	session := auth.NewTokenSession("", nil)
	f := newTestFlow(t, b, session, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	f.SetAccount(&model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"})

	s, err := f.Advance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.StepShipping, s.Step)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "tok-registered", session.Token())
	require.Len(t, b.registrations, 1)
	assert.Equal(t, "Anna", b.registrations[0].FirstName)
	assert.Equal(t, "Huber", b.registrations[0].LastName)

	_, err = f.Retreat()
	require.NoError(t, err)
	_, err = f.Advance(context.Background())
	require.NoError(t, err)

	assert.Len(t, b.registrations, 1, "signed-in shoppers are not registered again")
}

func TestFlow_RegistrationFailureBlocksAdvance(t *testing.T) {
	b := newFakeBackend()
	b.registerErr = &model.UpstreamError{Op: "register customer", Status: 400, Detail: "Email already registered"}
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	f.SetAccount(&model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"})

	s, err := f.Advance(context.Background())

	var regErr *model.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, model.StepContact, s.Step)
	assert.False(t, s.Advancing)
	assert.Equal(t, "Email already registered", s.Errors[ErrorKeyRegistration].Message)
	assert.False(t, s.Authenticated)

	b.mu.Lock()
	b.registerErr = nil
	b.mu.Unlock()

	s, err = f.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepShipping, s.Step)
	require.Len(t, b.registerKeys, 2)
	assert.Equal(t, b.registerKeys[0], b.registerKeys[1], "retries reuse the idempotency key")
}

func TestFlow_RetreatClearsErrors(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepShipping)
	f.SetShipping(ShippingDetails{})
	_, err := f.Advance(context.Background())
	require.Error(t, err)

	s, err := f.Retreat()
	require.NoError(t, err)
	assert.Equal(t, model.StepContact, s.Step)
	assert.Empty(t, s.Errors)

	_, _ = f.Retreat()
	s, _ = f.Retreat()
	assert.Equal(t, model.StepCart, s.Step)
}

func TestFlow_EditingFieldClearsItsError(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	f.SetContact(model.Contact{})
	_, err := f.Advance(context.Background())
	require.Error(t, err)

	s, err := f.SetContact(model.Contact{Name: "Anna"})
	require.NoError(t, err)

	assert.False(t, s.Errors.Has(validation.FieldName))
	assert.True(t, s.Errors.Has(validation.FieldEmail))
	assert.True(t, s.Errors.Has(validation.FieldPhone))
}

func TestFlow_SubmitSuccess(t *testing.T) {
	b := newFakeBackend()
	b.redirect.DemoMode = true
	f := newTestFlow(t, b, nil, lineItem("P1", "60.00", 2))
	_, err := f.ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)
	advanceTo(t, f, model.StepPayment)
	f.SetPayment(PaymentDetails{TermsAccepted: true})

	s, err := f.Advance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/session/1", s.CheckoutURL)
	assert.True(t, s.DemoMode)
	assert.Equal(t, model.StepCart, s.Step)
	assert.Nil(t, s.Coupon, "the submitted draft is discarded")
	assert.Empty(t, s.Draft.Contact.Name)
	assert.Len(t, s.Cart.Items, 1)

	require.Len(t, b.checkoutReqs, 1)
	req := b.checkoutReqs[0]
	assert.Equal(t, []model.OrderItemRequest{{ProductID: "P1", Quantity: 2}}, req.Items)
	require.NotNil(t, req.CouponCode)
	assert.Equal(t, "SAVE10", *req.CouponCode)
	assert.Nil(t, req.CustomerID)
	assert.Equal(t, "https://shop.example", req.OriginURL)
	assert.NotEmpty(t, b.checkoutKeys[0])
}

func TestFlow_SubmitFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		check   func(t *testing.T, err error)
		wantMsg string
	}{
		{
			name: "payment configuration",
			err:  &model.UpstreamError{Op: "create checkout", Status: 500, Detail: "Invalid API Key provided"},
			check: func(t *testing.T, err error) {
				var cfgErr *model.PaymentConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
			},
			wantMsg: "Payment system is being configured. Please contact us.",
		},
		{
			name: "server message",
			err:  &model.UpstreamError{Op: "create checkout", Status: 400, Detail: "Product P1 is out of stock"},
			check: func(t *testing.T, err error) {
				var subErr *model.SubmissionError
				assert.ErrorAs(t, err, &subErr)
			},
			wantMsg: "Product P1 is out of stock",
		},
		{
			name: "no message",
			err:  &model.UpstreamError{Op: "create checkout", Status: 500},
			check: func(t *testing.T, err error) {
				var subErr *model.SubmissionError
				assert.ErrorAs(t, err, &subErr)
			},
			wantMsg: MsgOrderFailed,
		},
		{
			name: "network",
			err:  &model.NetworkError{Op: "create checkout", Err: errors.New("connection reset")},
			check: func(t *testing.T, err error) {
				var netErr *model.NetworkError
				assert.ErrorAs(t, err, &netErr)
			},
			wantMsg: MsgNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.checkoutErr = tt.err
			f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
			advanceTo(t, f, model.StepPayment)
			f.SetPayment(PaymentDetails{TermsAccepted: true})
			before := f.State().Draft

			s, err := f.Advance(context.Background())

			tt.check(t, err)
			assert.Equal(t, model.StepPayment, s.Step)
			assert.Equal(t, tt.wantMsg, s.Errors[ErrorKeySubmit].Message)
			assert.Equal(t, before, s.Draft, "draft stays intact for retry")
			assert.Len(t, s.Cart.Items, 1)
			assert.Empty(t, s.CheckoutURL)
		})
	}
}

func TestFlow_MissingCheckoutURL(t *testing.T) {
	b := newFakeBackend()
	b.redirect = &model.CheckoutRedirect{}
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepPayment)
	f.SetPayment(PaymentDetails{TermsAccepted: true})

	s, err := f.Advance(context.Background())

	require.Error(t, err)
	assert.Equal(t, MsgNoCheckoutURL, s.Errors[ErrorKeySubmit].Message)
	assert.Equal(t, model.StepPayment, s.Step)
}

func TestFlow_SaveAddressForSignedInShopper(t *testing.T) {
	b := newFakeBackend()
	b.profile = &model.Customer{ID: "cust-7", Email: "max@example.de", FirstName: "Max", LastName: "Muster", Phone: "0301234567"}
	session := auth.NewTokenSession("tok-7", nil)
	f := newTestFlow(t, b, session, lineItem("P1", "10.00", 1))

	s := f.State()
	assert.Equal(t, "Max Muster", s.Draft.Contact.Name, "prefilled from profile")

	f.SetShipping(ShippingDetails{
		Address:               model.Address{Street: "Allee 5", City: "Berlin", PostalCode: "10115", Country: "Deutschland"},
		BillingSameAsShipping: true,
		SaveAddress:           true,
	})
	for f.State().Step < model.StepPayment {
		_, err := f.Advance(context.Background())
		require.NoError(t, err)
	}
	f.SetPayment(PaymentDetails{TermsAccepted: true})

	_, err := f.Advance(context.Background())
	require.NoError(t, err)

	require.Len(t, b.profileUpdates, 1)
	assert.Equal(t, "Berlin", b.profileUpdates[0].DefaultCity)
	require.NotNil(t, b.checkoutReqs[0].CustomerID)
	assert.Equal(t, "cust-7", *b.checkoutReqs[0].CustomerID)
}

func TestFlow_StaleEmailCheckIsDiscarded(t *testing.T) {
	b := newFakeBackend()
	b.emailExists["old@example.at"] = true
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.emailHook = func(ctx context.Context, email string) {
		if email == "old@example.at" {
			once.Do(func() { close(started) })
			<-release
		}
	}

	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	c := validContact()
	c.Email = "old@example.at"
	f.SetContact(c)
	f.SetAccount(&model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"})

	done := make(chan State, 1)
	go func() {
		s, _ := f.CheckEmail(context.Background())
		done <- s
	}()
	<-started
	assert.True(t, f.State().Email.Checking)

	c.Email = "new@example.at"
	f.SetContact(c)
	close(release)
	<-done

	s := f.State()
	assert.False(t, s.Email.Known, "result for the old email must not apply")
	assert.False(t, s.Errors.Has(validation.FieldEmail))

	s, err := f.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StepShipping, s.Step)
}

func TestFlow_EmailCheckSkippedWithoutAccountRequest(t *testing.T) {
	b := newFakeBackend()
	called := false
	b.emailHook = func(context.Context, string) { called = true }
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	f.SetContact(validContact())

	_, err := f.CheckEmail(context.Background())

	require.NoError(t, err)
	assert.False(t, called)
}

func TestFlow_EmptyingCartDiscardsDraft(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepShipping)
	_, err := f.ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)

	require.NoError(t, f.Cart().Remove("P1"))

	s := f.State()
	assert.Equal(t, model.StepCart, s.Step)
	assert.Empty(t, s.Draft.Contact.Email)
	assert.Nil(t, s.Coupon)
	assert.True(t, s.Total.Equal(dec("4.90")))
}

func TestFlow_CartChangeUpdatesQuote(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "40.00", 1))
	assert.False(t, f.State().Shipping.IsFree)

	require.NoError(t, f.Cart().UpdateQuantity("P1", 2))

	s := f.State()
	assert.True(t, s.Shipping.IsFree)
	assert.True(t, dec("80").Equal(s.Total))
}

func TestFlow_Subscribe(t *testing.T) {
	f := newTestFlow(t, newFakeBackend(), nil, lineItem("P1", "10.00", 1))

	var steps []model.Step
	unsubscribe := f.Subscribe(func(s State) { steps = append(steps, s.Step) })

	_, err := f.Advance(context.Background())
	require.NoError(t, err)
	unsubscribe()
	_, _ = f.Retreat()

	require.NotEmpty(t, steps)
	assert.Equal(t, model.StepContact, steps[len(steps)-1])
}

func TestFlow_StartToleratesFailures(t *testing.T) {
	b := newFakeBackend()
	b.ratesErr = errors.New("rates down")
	b.profileErr = errors.New("profile down")
	f := newTestFlow(t, b, auth.NewTokenSession("tok", nil), lineItem("P1", "10.00", 1))

	s := f.State()
	assert.True(t, dec("9.90").Equal(s.Shipping.Cost))
	assert.Len(t, s.Countries, 7)
}

func TestFlow_SnapshotRestore(t *testing.T) {
	b := newFakeBackend()
	f := newTestFlow(t, b, auth.NewTokenSession("", nil), lineItem("P1", "25.00", 2))
	_, err := f.ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)
	advanceTo(t, f, model.StepPayment)

	snap := f.Snapshot()

	restored := NewFlow(snap.ID, snap.Items, auth.NewTokenSession(snap.AuthToken, snap.Customer), deps(b), Options{}, f.logger)
	restored.Restore(snap)
	s := restored.State()

	assert.Equal(t, f.ID(), restored.ID())
	assert.Equal(t, model.StepPayment, s.Step)
	assert.Equal(t, "Anna Huber", s.Draft.Contact.Name)
	require.NotNil(t, s.Coupon)
	assert.True(t, dec("5").Equal(s.Discount))
}

func TestFlow_BusyDuringSubmission(t *testing.T) {
	b := newFakeBackend()
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepPayment)
	f.SetPayment(PaymentDetails{TermsAccepted: true})

	f.mu.Lock()
	f.advancing = true
	f.mu.Unlock()

	_, err := f.Advance(context.Background())
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = f.Retreat()
	assert.ErrorIs(t, err, model.ErrBusy)
	assert.Empty(t, b.checkoutReqs)
}

func TestFlow_DraftFrozenWhileRegistering(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := newFakeBackend()
	b.registerHook = func() {
		close(started)
		<-release
	}
	f := newTestFlow(t, b, nil, lineItem("P1", "10.00", 1))
	advanceTo(t, f, model.StepContact)
	_, err := f.SetAccount(&model.AccountRequest{Password: "secret1", ConfirmPassword: "secret1"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.Advance(context.Background())
		done <- err
	}()
	<-started

	_, err = f.SetContact(model.Contact{Name: "", Email: "not-an-email", Phone: "1"})
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = f.SetAccount(nil)
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = f.SetShipping(ShippingDetails{})
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = f.SetPayment(PaymentDetails{TermsAccepted: true})
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = f.ApplyCoupon(context.Background(), "SAVE10")
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = f.RemoveCoupon()
	assert.ErrorIs(t, err, model.ErrBusy)

	close(release)
	require.NoError(t, <-done)

	s := f.State()
	assert.Equal(t, model.StepShipping, s.Step)
	assert.Equal(t, validContact(), s.Draft.Contact)

	_, err = f.Advance(context.Background())
	require.NoError(t, err)
	_, err = f.SetPayment(PaymentDetails{AgeVerified: true, TermsAccepted: true})
	require.NoError(t, err)
	_, err = f.Advance(context.Background())
	require.NoError(t, err)

	require.Len(t, b.checkoutReqs, 1)
	assert.Equal(t, "anna@example.at", b.checkoutReqs[0].CustomerEmail)
	assert.Equal(t, "Anna Huber", b.checkoutReqs[0].CustomerName)
}

func TestFlow_EmptyingCartDuringCouponCheckDropsCoupon(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := newFakeBackend()
	b.couponHook = func() {
		close(started)
		<-release
	}
	f := newTestFlow(t, b, nil, lineItem("P1", "100.00", 1))

	done := make(chan error, 1)
	go func() {
		_, err := f.ApplyCoupon(context.Background(), "SAVE10")
		done <- err
	}()
	<-started

	f.Cart().Clear()
	close(release)

	assert.ErrorIs(t, <-done, model.ErrCouponDiscarded)
	s := f.State()
	assert.Equal(t, 0, s.ItemCount)
	assert.Nil(t, s.Coupon)
	assert.True(t, s.Discount.IsZero())
}
