package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krayotmarket/internal/backend"
	"krayotmarket/internal/events"
	"krayotmarket/internal/models"
	"krayotmarket/internal/payment"
	"krayotmarket/internal/slots"
	"krayotmarket/internal/storage"
)

const trustedOrigin = "https://secure.cardcom.solutions"

type recordingOrders struct {
	mu       sync.Mutex
	payloads []models.OrderPayload
	err      error
}

func (o *recordingOrders) CreateOrder(_ context.Context, p models.OrderPayload) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	o.payloads = append(o.payloads, p)
	return "ord-1", nil
}

func (o *recordingOrders) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.payloads)
}

// gatedOrders holds CreateOrder until release is closed.
type gatedOrders struct {
	recordingOrders
	entered chan struct{}
	release chan struct{}
}

func (o *gatedOrders) CreateOrder(ctx context.Context, p models.OrderPayload) (string, error) {
	o.entered <- struct{}{}
	<-o.release
	return o.recordingOrders.CreateOrder(ctx, p)
}

type fakeAvailability struct {
	mu   sync.Mutex
	snap AvailabilitySnapshot
}

func (f *fakeAvailability) Snapshot(context.Context) AvailabilitySnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int, len(f.snap.Counts))
	for k, v := range f.snap.Counts {
		counts[k] = v
	}
	return AvailabilitySnapshot{Express: f.snap.Express, Counts: counts}
}

func (f *fakeAvailability) Invalidate(context.Context) {}

func (f *fakeAvailability) setCount(key string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Counts[key] = n
}

type gatedInitiator struct {
	release chan struct{}
	err     error
	calls   int
	got     payment.SessionRequest
}

func (g *gatedInitiator) InitiateSession(_ context.Context, req payment.SessionRequest) (models.PaymentSession, error) {
	g.calls++
	g.got = req
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return models.PaymentSession{}, g.err
	}
	return models.PaymentSession{LowProfileID: "lp-42", TerminalNumber: "1000"}, nil
}

type recordingPublisher struct {
	events.NopPublisher
	got []events.OrderPlaced
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e events.OrderPlaced) error {
	p.got = append(p.got, e)
	return nil
}

type recordingNotifier struct{ ids []string }

func (n *recordingNotifier) NotifyNewOrder(id string, _ models.OrderPayload, _ models.Cart) error {
	n.ids = append(n.ids, id)
	return nil
}

type fixture struct {
	orders    *recordingOrders
	avail     *fakeAvailability
	initiator *gatedInitiator
	cart      *CartService
	events    *recordingPublisher
	notifier  *recordingNotifier
	deps      *CheckoutDeps
	registry  *CheckoutRegistry
	checkout  *Checkout
	now       time.Time
}

// 10:00 with a 2 hour lead offers 12:00 through 20:00 today.
var fixedNow = time.Date(2026, time.June, 1, 10, 0, 0, 0, time.Local)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixtureWithoutBegin(t)
	f.checkout.Begin(context.Background())
	return f
}

// newFixtureWithoutBegin is a checkout that never loaded availability, as
// after a restart or an idle prune.
func newFixtureWithoutBegin(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:       fixedNow,
		orders:    &recordingOrders{},
		avail:     &fakeAvailability{snap: AvailabilitySnapshot{Express: true, Counts: map[string]int{}}},
		initiator: &gatedInitiator{},
		cart:      NewCartService(storage.NewMemoryStore(), DefaultPricing(), 0),
		events:    &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	deps := &CheckoutDeps{
		Orders:        f.orders,
		Payments:      payment.NewHostedFields(f.initiator, trustedOrigin, "https://fields.test"),
		Availability:  f.avail,
		Cart:          f.cart,
		Slots:         slots.NewCalculator(),
		SlotCapacity:  slots.DefaultCapacity,
		Events:        f.events,
		Notifier:      f.notifier,
		ReturnBaseURL: "http://localhost:8082",
		InitDelay:     300 * time.Millisecond,
		Now:           func() time.Time { return f.now },
	}
	f.deps = deps
	f.registry = NewCheckoutRegistry(deps, time.Hour)
	f.checkout = f.registry.Get("shopper")

	ctx := context.Background()
	_, err := f.cart.Add(ctx, "shopper", product("p1", 100))
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, "shopper", product("p1", 100))
	require.NoError(t, err)
	return f
}

func validForm(method models.PaymentMethod) models.CheckoutForm {
	return models.CheckoutForm{
		CustomerName:     " נועה כהן ",
		CustomerPhone:    "050-1234567",
		DeliveryAddress:  "הרצל 1",
		DeliveryCity:     "קריית ביאליק",
		PaymentMethod:    method,
		DeliveryTimeSlot: "2026-06-01 14",
	}
}

func resultMessage(t *testing.T, origin string, success bool, description string) payment.Inbound {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"action": "HandleSubmit",
		"data":   map[string]interface{}{"IsSuccess": success, "Description": description},
	})
	require.NoError(t, err)
	return payment.Inbound{Origin: origin, Data: raw}
}

func TestBeginOffersSlotsAndExpress(t *testing.T) {
	f := newFixture(t)
	v := f.checkout.View(context.Background())

	assert.Equal(t, StepDelivery, v.Step)
	require.Len(t, v.Slots, 9)
	assert.Equal(t, "2026-06-01 12", v.Slots[0].Value)
	assert.Equal(t, "12:00", v.Slots[0].Label)
	assert.True(t, v.ExpressAvailable)
	assert.Equal(t, "215", v.Cart.Total.String())
}

func TestCashSubmitPostsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.checkout.Submit(ctx, validForm(models.PaymentCash))
	require.NoError(t, err)

	assert.Equal(t, StepDone, v.Step)
	assert.Equal(t, "ord-1", v.OrderID)
	require.Equal(t, 1, f.orders.count())
	p := f.orders.payloads[0]
	assert.Equal(t, "נועה כהן", p.CustomerName)
	require.NotNil(t, p.DeliveryTimeSlot)
	assert.Equal(t, "2026-06-01 14", *p.DeliveryTimeSlot)
	assert.False(t, p.ExpressDelivery)
	require.Len(t, p.Items, 1)
	assert.Equal(t, 2, p.Items[0].Quantity)

	assert.Equal(t, 0, f.cart.Cart(ctx, "shopper").Count)
	require.Len(t, f.events.got, 1)
	assert.Equal(t, "215", f.events.got[0].Total.String())
	assert.Equal(t, []string{"ord-1"}, f.notifier.ids)

	_, err = f.checkout.Submit(ctx, validForm(models.PaymentCash))
	assert.ErrorIs(t, err, ErrWrongStep)
	assert.Equal(t, 1, f.orders.count())
}

func TestCashSubmitBackendFailure(t *testing.T) {
	f := newFixture(t)
	f.orders.err = &backend.APIError{Status: 400, Message: "מלאי חסר"}

	v, err := f.checkout.Submit(context.Background(), validForm(models.PaymentCash))
	require.Error(t, err)
	assert.Equal(t, StepDelivery, v.Step)
	assert.Equal(t, "מלאי חסר", v.Error)
	assert.Equal(t, 2, v.Cart.Count, "cart is kept")

	f.orders.err = errors.New("connection refused")
	v, _ = f.checkout.Submit(context.Background(), validForm(models.PaymentCash))
	assert.Equal(t, msgOrderFailed, v.Error)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*models.CheckoutForm)
		field string
	}{
		{"name", func(f *models.CheckoutForm) { f.CustomerName = "  " }, "customer_name"},
		{"phone", func(f *models.CheckoutForm) { f.CustomerPhone = "" }, "customer_phone"},
		{"address", func(f *models.CheckoutForm) { f.DeliveryAddress = "" }, "delivery_address"},
		{"city", func(f *models.CheckoutForm) { f.DeliveryCity = "" }, "delivery_city"},
		{"slot", func(f *models.CheckoutForm) { f.DeliveryTimeSlot = "" }, "delivery_time_slot"},
		{"unknown slot", func(f *models.CheckoutForm) { f.DeliveryTimeSlot = "2026-06-01 9" }, "delivery_time_slot"},
		{"method", func(f *models.CheckoutForm) { f.PaymentMethod = "bitcoin" }, "payment_method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			form := validForm(models.PaymentCash)
			tt.edit(&form)

			_, err := f.checkout.Submit(context.Background(), form)
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, 0, f.orders.count())
		})
	}
}

func TestSubmitWithoutSlotWhenNoneAvailable(t *testing.T) {
	f := newFixture(t)
	for h := 12; h <= 20; h++ {
		f.avail.setCount(slotKey(h), slots.DefaultCapacity)
	}
	f.checkout.RefreshAvailability(context.Background())

	form := validForm(models.PaymentCash)
	form.DeliveryTimeSlot = ""
	_, err := f.checkout.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Nil(t, f.orders.payloads[0].DeliveryTimeSlot)
}

// Express delivery stands in for the slot even when slots are offered.
func TestExpressReplacesOfferedSlot(t *testing.T) {
	f := newFixture(t)
	form := validForm(models.PaymentCash)
	form.DeliveryTimeSlot = ""
	form.ExpressDelivery = true

	_, err := f.checkout.Submit(context.Background(), form)
	require.NoError(t, err)
	p := f.orders.payloads[0]
	assert.True(t, p.ExpressDelivery)
	assert.Nil(t, p.DeliveryTimeSlot)
}

func TestSubmitWithoutBeginKeepsChosenSlot(t *testing.T) {
	f := newFixtureWithoutBegin(t)

	v, err := f.checkout.Submit(context.Background(), validForm(models.PaymentCash))
	require.NoError(t, err)
	assert.Equal(t, StepDone, v.Step)
	require.Equal(t, 1, f.orders.count())
	require.NotNil(t, f.orders.payloads[0].DeliveryTimeSlot)
	assert.Equal(t, "2026-06-01 14", *f.orders.payloads[0].DeliveryTimeSlot)
}

func TestSubmitWithoutBeginRequiresSlot(t *testing.T) {
	f := newFixtureWithoutBegin(t)
	form := validForm(models.PaymentCash)
	form.DeliveryTimeSlot = ""

	_, err := f.checkout.Submit(context.Background(), form)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "delivery_time_slot", ve.Field)
	assert.Equal(t, 0, f.orders.count())
}

func TestUpdateFormWithoutBeginKeepsChosenSlot(t *testing.T) {
	f := newFixtureWithoutBegin(t)

	v, err := f.checkout.UpdateForm(context.Background(), validForm(models.PaymentCash))
	require.NoError(t, err)
	assert.Equal(t, "2026-06-01 14", v.Form.DeliveryTimeSlot)
	assert.Len(t, v.Slots, 9)
}

func TestSubmitAfterPruneKeepsChosenSlot(t *testing.T) {
	f := newFixture(t)
	f.now = f.now.Add(2 * time.Hour)

	c := f.registry.Get("shopper")
	require.NotSame(t, f.checkout, c)

	_, err := c.Submit(context.Background(), validForm(models.PaymentCash))
	require.NoError(t, err)
	require.Equal(t, 1, f.orders.count())
	require.NotNil(t, f.orders.payloads[0].DeliveryTimeSlot)
	assert.Equal(t, "2026-06-01 14", *f.orders.payloads[0].DeliveryTimeSlot)
}

func TestPlacingOrderDoesNotBlockOtherShoppers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := &gatedOrders{entered: make(chan struct{}), release: make(chan struct{})}
	f.deps.Orders = orders

	done := make(chan error, 1)
	go func() {
		_, err := f.checkout.Submit(ctx, validForm(models.PaymentCash))
		done <- err
	}()
	<-orders.entered

	other := make(chan CheckoutView, 1)
	go func() { other <- f.registry.Get("other").Begin(ctx) }()
	select {
	case v := <-other:
		assert.Equal(t, StepDelivery, v.Step)
	case <-time.After(time.Second):
		t.Fatal("another shopper's checkout waited for the order post")
	}

	v := f.checkout.View(ctx)
	assert.True(t, v.Placing)
	_, err := f.checkout.Submit(ctx, validForm(models.PaymentCash))
	assert.ErrorIs(t, err, ErrOrderInProgress)
	_, err = f.checkout.UpdateForm(ctx, validForm(models.PaymentCash))
	assert.ErrorIs(t, err, ErrOrderInProgress)

	close(orders.release)
	require.NoError(t, <-done)

	v = f.checkout.View(ctx)
	assert.Equal(t, StepDone, v.Step)
	assert.False(t, v.Placing)
	assert.Equal(t, 1, orders.count())
}

func TestCardSuccessPostsOnceWhilePlacing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	startCard(t, f)
	orders := &gatedOrders{entered: make(chan struct{}), release: make(chan struct{})}
	f.deps.Orders = orders

	success := resultMessage(t, trustedOrigin, true, "")
	done := make(chan error, 1)
	go func() {
		_, err := f.checkout.HandleMessage(ctx, success)
		done <- err
	}()
	<-orders.entered

	v, err := f.checkout.HandleMessage(ctx, success)
	require.NoError(t, err)
	assert.True(t, v.Placing)
	v = f.checkout.Cancel(ctx)
	assert.Equal(t, StepCard, v.Step, "cancel has no effect while the order is posted")

	close(orders.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, orders.count())
	assert.Equal(t, StepDone, f.checkout.View(ctx).Step)
}

func TestSlotClearsExpress(t *testing.T) {
	f := newFixture(t)
	form := validForm(models.PaymentCash)
	form.ExpressDelivery = true

	v, err := f.checkout.UpdateForm(context.Background(), form)
	require.NoError(t, err)
	assert.False(t, v.Form.ExpressDelivery)
	assert.Equal(t, "2026-06-01 14", v.Form.DeliveryTimeSlot)
}

func TestExpressRequiresCapacity(t *testing.T) {
	f := newFixture(t)
	f.avail.snap.Express = false
	f.checkout.RefreshAvailability(context.Background())

	form := validForm(models.PaymentCash)
	form.DeliveryTimeSlot = ""
	form.ExpressDelivery = true
	v, err := f.checkout.UpdateForm(context.Background(), form)
	require.NoError(t, err)
	assert.False(t, v.Form.ExpressDelivery)
}

func TestFullSlotIsClearedOnRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.checkout.UpdateForm(ctx, validForm(models.PaymentCash))
	require.NoError(t, err)

	f.avail.setCount("2026-06-01 14", 4)
	v := f.checkout.RefreshAvailability(ctx)
	assert.Equal(t, "2026-06-01 14", v.Form.DeliveryTimeSlot)

	f.avail.setCount("2026-06-01 14", 5)
	v = f.checkout.RefreshAvailability(ctx)
	assert.Empty(t, v.Form.DeliveryTimeSlot)
	assert.False(t, slots.Contains(v.Slots, "2026-06-01 14"))
}

func startCard(t *testing.T, f *fixture) CheckoutView {
	t.Helper()
	v, err := f.checkout.Submit(context.Background(), validForm(models.PaymentCard))
	require.NoError(t, err)
	require.Equal(t, StepCard, v.Step)
	f.checkout.wait()
	return f.checkout.View(context.Background())
}

func TestCardSuccessPostsAfterResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := startCard(t, f)
	require.NotNil(t, v.Session)
	assert.Equal(t, "lp-42", v.Session.LowProfileID)
	assert.Contains(t, v.Frames.Master, "lowProfileCode=lp-42")
	assert.False(t, v.Loading)
	assert.Equal(t, "215", f.initiator.got.Amount.String())
	assert.Equal(t, "15", f.initiator.got.DeliveryFee.String())

	msg, delay, err := f.checkout.FrameLoaded()
	require.NoError(t, err)
	assert.Equal(t, payment.ActionInit, msg["action"])
	assert.Equal(t, 300*time.Millisecond, delay)

	tx, err := f.checkout.Pay(payment.TransactionRequest{CardOwnerName: "נועה", ExpiryMonth: 12, ExpiryYear: 2035})
	require.NoError(t, err)
	doc := tx["document"].(payment.Document)
	require.Len(t, doc.Products, 2)
	assert.Equal(t, "דמי משלוח", doc.Products[1].Description)

	assert.Equal(t, 0, f.orders.count(), "no order before the success message")

	v, err = f.checkout.HandleMessage(ctx, resultMessage(t, trustedOrigin, true, "אושר"))
	require.NoError(t, err)
	assert.Equal(t, StepDone, v.Step)
	assert.Equal(t, "ord-1", v.OrderID)
	require.Equal(t, 1, f.orders.count())
	assert.Equal(t, models.PaymentCard, f.orders.payloads[0].PaymentMethod)
	assert.Equal(t, 0, f.cart.Cart(ctx, "shopper").Count)

	// A duplicate success after completion creates nothing.
	_, err = f.checkout.HandleMessage(ctx, resultMessage(t, trustedOrigin, true, "אושר"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.orders.count())
}

func TestCardNegativeResultKeepsCardStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	startCard(t, f)

	v, err := f.checkout.HandleMessage(ctx, resultMessage(t, trustedOrigin, false, "כרטיס נדחה"))
	require.NoError(t, err)
	assert.Equal(t, StepCard, v.Step)
	assert.Equal(t, "כרטיס נדחה", v.Error)
	assert.Equal(t, 0, f.orders.count())

	raw, _ := json.Marshal(map[string]interface{}{"action": "HandleEror", "message": "CVV שגוי"})
	v, _ = f.checkout.HandleMessage(ctx, payment.Inbound{Origin: trustedOrigin, Data: raw})
	assert.Equal(t, "CVV שגוי", v.Error)
	assert.Equal(t, 0, f.orders.count())

	// Retry reuses the held payload even if the live cart changed.
	_, err = f.cart.Add(ctx, "shopper", product("p9", 1000))
	require.NoError(t, err)
	_, err = f.checkout.HandleMessage(ctx, resultMessage(t, trustedOrigin, true, ""))
	require.NoError(t, err)
	require.Equal(t, 1, f.orders.count())
	assert.Len(t, f.orders.payloads[0].Items, 1)
}

func TestCardIgnoresUntrustedOrigin(t *testing.T) {
	f := newFixture(t)
	startCard(t, f)

	v, err := f.checkout.HandleMessage(context.Background(), resultMessage(t, "https://evil.example", true, ""))
	require.NoError(t, err)
	assert.Equal(t, StepCard, v.Step)
	assert.Equal(t, 0, f.orders.count())
}

func TestMessagesIgnoredOutsideCardStep(t *testing.T) {
	f := newFixture(t)
	v, err := f.checkout.HandleMessage(context.Background(), resultMessage(t, trustedOrigin, true, ""))
	require.NoError(t, err)
	assert.Equal(t, StepDelivery, v.Step)
	assert.Equal(t, 0, f.orders.count())

	_, _, err = f.checkout.FrameLoaded()
	assert.ErrorIs(t, err, ErrWrongStep)
	_, err = f.checkout.Pay(payment.TransactionRequest{})
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestCancelDiscardsLateSession(t *testing.T) {
	f := newFixture(t)
	f.initiator.release = make(chan struct{})
	ctx := context.Background()

	v, err := f.checkout.Submit(ctx, validForm(models.PaymentCard))
	require.NoError(t, err)
	assert.True(t, v.Loading)
	_, _, err = f.checkout.FrameLoaded()
	assert.ErrorIs(t, err, ErrNoSession)

	// While pending, a success message has no session to apply to.
	_, err = f.checkout.HandleMessage(ctx, resultMessage(t, trustedOrigin, true, ""))
	require.NoError(t, err)
	assert.Equal(t, 0, f.orders.count())

	v = f.checkout.Cancel(ctx)
	assert.Equal(t, StepDelivery, v.Step)

	close(f.initiator.release)
	f.checkout.wait()

	v = f.checkout.View(ctx)
	assert.Equal(t, StepDelivery, v.Step)
	assert.Nil(t, v.Session)
	assert.False(t, v.Loading)
	assert.Equal(t, 2, v.Cart.Count)
}

func TestCardSessionInitFailure(t *testing.T) {
	f := newFixture(t)
	f.initiator.err = &backend.APIError{Status: 502, Message: "ספק התשלום אינו זמין"}

	v := startCard(t, f)
	assert.Equal(t, StepCard, v.Step)
	assert.Nil(t, v.Session)
	assert.Equal(t, "ספק התשלום אינו זמין", v.Error)

	v = f.checkout.Cancel(context.Background())
	assert.Equal(t, StepDelivery, v.Step)
	assert.Empty(t, v.Error)
}

func TestBeginAfterDoneStartsOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.checkout.Submit(ctx, validForm(models.PaymentCash))
	require.NoError(t, err)

	v := f.checkout.Begin(ctx)
	assert.Equal(t, StepDelivery, v.Step)
	assert.Empty(t, v.OrderID)
	assert.Empty(t, v.Form.CustomerName)
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cart.Clear(ctx, "shopper"))

	_, err := f.checkout.Submit(ctx, validForm(models.PaymentCash))
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, f.orders.count())
}

func TestRegistryReusesAndPrunes(t *testing.T) {
	now := fixedNow
	deps := &CheckoutDeps{Now: func() time.Time { return now }}
	r := NewCheckoutRegistry(deps, time.Hour)

	a := r.Get("a")
	assert.Same(t, a, r.Get("a"))

	now = now.Add(2 * time.Hour)
	assert.NotSame(t, a, r.Get("a"))
}

func slotKey(h int) string {
	return fixedNow.Format("2006-01-02") + " " + strconv.Itoa(h)
}
