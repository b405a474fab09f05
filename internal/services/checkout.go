package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"krayotmarket/internal/events"
	"krayotmarket/internal/models"
	"krayotmarket/internal/payment"
	"krayotmarket/internal/slots"
)

// Step is a checkout state.
type Step string

const (
	StepDelivery Step = "delivery"
	StepCard     Step = "card"
	StepDone     Step = "done"
)

const (
	msgOrderFailed   = "שגיאה בשליחת ההזמנה"
	msgPaymentFailed = "התשלום נכשל"
	msgInitFailed    = "לא ניתן לפתוח את טופס התשלום"
)

var tracer = otel.Tracer("krayotmarket/services")

// OrderCreator posts an order to the backend and returns its id.
type OrderCreator interface {
	CreateOrder(ctx context.Context, payload models.OrderPayload) (string, error)
}

// AvailabilityProbe is what checkout needs from Availability.
type AvailabilityProbe interface {
	Snapshot(ctx context.Context) AvailabilitySnapshot
	Invalidate(ctx context.Context)
}

// OrderNotifier is told about every created order.
type OrderNotifier interface {
	NotifyNewOrder(orderID string, payload models.OrderPayload, totals models.Cart) error
}

// CheckoutDeps are shared by every shopper's checkout.
type CheckoutDeps struct {
	Orders        OrderCreator
	Payments      payment.Provider
	Availability  AvailabilityProbe
	Cart          *CartService
	Slots         slots.Calculator
	SlotCapacity  int
	Events        events.Publisher
	Notifier      OrderNotifier
	ReturnBaseURL string
	InitDelay     time.Duration
	InitTimeout   time.Duration
	Now           func() time.Time
}

func (d *CheckoutDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// CheckoutView is a snapshot of one checkout for rendering.
type CheckoutView struct {
	Step             Step                   `json:"step"`
	Form             models.CheckoutForm    `json:"form"`
	Slots            []models.DeliverySlot  `json:"slots"`
	ExpressAvailable bool                   `json:"express_available"`
	Cart             models.Cart            `json:"cart"`
	Loading          bool                   `json:"loading"`
	Placing          bool                   `json:"placing"`
	Session          *models.PaymentSession `json:"session,omitempty"`
	Frames           *payment.Frames        `json:"frames,omitempty"`
	Error            string                 `json:"error,omitempty"`
	OrderID          string                 `json:"order_id,omitempty"`
}

// Checkout is one shopper's checkout state machine:
// delivery -> card (card payments only) -> done, with cancel returning from
// card to delivery. All methods are safe for concurrent use. No network
// call runs while mu is held.
type Checkout struct {
	deps      *CheckoutDeps
	sessionID string

	mu        sync.Mutex
	step      Step
	form      models.CheckoutForm
	available []models.DeliverySlot
	loaded    bool
	express   bool
	placing   bool
	lastError string
	orderID   string

	// Card step. held is captured once at submission and never re-derived.
	held        *models.OrderPayload
	heldTotals  models.Cart
	session     *models.PaymentSession
	initPending bool
	attempt     int
	inflight    sync.WaitGroup
	touched     time.Time
}

// placement is an order ready to be posted.
type placement struct {
	payload models.OrderPayload
	totals  models.Cart
}

func newCheckout(deps *CheckoutDeps, sessionID string) *Checkout {
	return &Checkout{
		deps:      deps,
		sessionID: sessionID,
		step:      StepDelivery,
		form:      models.CheckoutForm{PaymentMethod: models.PaymentCash},
		touched:   deps.now(),
	}
}

// Begin opens the delivery form. A finished checkout starts over.
func (c *Checkout) Begin(ctx context.Context) CheckoutView {
	c.mu.Lock()
	if c.step == StepDone {
		c.step = StepDelivery
		c.form = models.CheckoutForm{PaymentMethod: models.PaymentCash}
		c.orderID = ""
		c.lastError = ""
	}
	c.mu.Unlock()
	return c.refresh(ctx, false)
}

// RefreshAvailability refetches express and slot counts. A selected slot
// that filled up meanwhile is cleared.
func (c *Checkout) RefreshAvailability(ctx context.Context) CheckoutView {
	return c.refresh(ctx, true)
}

func (c *Checkout) refresh(ctx context.Context, force bool) CheckoutView {
	available, express := c.probe(ctx, force)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = c.deps.now()
	c.applyAvailabilityLocked(available, express)
	return c.viewLocked(ctx)
}

// probe fetches express capacity and the slots that still have room.
func (c *Checkout) probe(ctx context.Context, force bool) ([]models.DeliverySlot, bool) {
	if force {
		c.deps.Availability.Invalidate(ctx)
	}
	snap := c.deps.Availability.Snapshot(ctx)
	offered := c.deps.Slots.Compute(c.deps.now())
	return slots.FilterByCapacity(offered, snap.Counts, c.deps.SlotCapacity), snap.Express
}

func (c *Checkout) applyAvailabilityLocked(available []models.DeliverySlot, express bool) {
	c.available = available
	c.express = express
	c.loaded = true
	if c.form.DeliveryTimeSlot != "" && !slots.Contains(available, c.form.DeliveryTimeSlot) {
		log.Printf("Checkout.refresh - Session %s: slot %s is no longer available", c.sessionID, c.form.DeliveryTimeSlot)
		c.form.DeliveryTimeSlot = ""
	}
	if !c.express {
		c.form.ExpressDelivery = false
	}
}

// ensureAvailability loads slots and express capacity for a checkout that
// never had them, such as one created after a restart or an idle prune.
func (c *Checkout) ensureAvailability(ctx context.Context) {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return
	}

	available, express := c.probe(ctx, false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.applyAvailabilityLocked(available, express)
	}
}

// UpdateForm stores the shopper's draft. Choosing a slot clears express, and
// express is dropped when the backend has no express capacity.
func (c *Checkout) UpdateForm(ctx context.Context, f models.CheckoutForm) (CheckoutView, error) {
	c.ensureAvailability(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = c.deps.now()
	if c.placing {
		return c.viewLocked(ctx), ErrOrderInProgress
	}
	if c.step != StepDelivery {
		return c.viewLocked(ctx), ErrWrongStep
	}
	if err := c.setFormLocked(f); err != nil {
		return c.viewLocked(ctx), err
	}
	return c.viewLocked(ctx), nil
}

func (c *Checkout) setFormLocked(f models.CheckoutForm) error {
	if f.PaymentMethod == "" {
		f.PaymentMethod = models.PaymentCash
	}
	if !f.PaymentMethod.Valid() {
		return &ValidationError{Field: "payment_method", Message: "אמצעי תשלום לא תקין"}
	}
	if f.DeliveryTimeSlot != "" && !slots.Contains(c.available, f.DeliveryTimeSlot) {
		f.DeliveryTimeSlot = ""
	}
	if f.DeliveryTimeSlot != "" || !c.express {
		f.ExpressDelivery = false
	}
	c.form = f
	return nil
}

func (c *Checkout) validateLocked() error {
	f := c.form
	required := []struct{ field, value, msg string }{
		{"customer_name", f.CustomerName, "נא למלא שם מלא"},
		{"customer_phone", f.CustomerPhone, "נא למלא טלפון"},
		{"delivery_address", f.DeliveryAddress, "נא למלא כתובת"},
		{"delivery_city", f.DeliveryCity, "נא למלא עיר"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: r.msg}
		}
	}
	if len(c.available) > 0 && f.DeliveryTimeSlot == "" && !f.ExpressDelivery {
		return &ValidationError{Field: "delivery_time_slot", Message: "נא לבחור שעת משלוח"}
	}
	return nil
}

func buildPayload(f models.CheckoutForm, items []models.CartItem) models.OrderPayload {
	p := models.OrderPayload{
		CustomerName:    strings.TrimSpace(f.CustomerName),
		CustomerPhone:   strings.TrimSpace(f.CustomerPhone),
		DeliveryAddress: strings.TrimSpace(f.DeliveryAddress),
		DeliveryCity:    strings.TrimSpace(f.DeliveryCity),
		PaymentMethod:   f.PaymentMethod,
		ExpressDelivery: f.ExpressDelivery && f.DeliveryTimeSlot == "",
		Items:           make([]models.OrderLine, 0, len(items)),
	}
	if f.DeliveryTimeSlot != "" {
		slot := f.DeliveryTimeSlot
		p.DeliveryTimeSlot = &slot
	}
	for _, it := range items {
		p.Items = append(p.Items, models.OrderLine{
			ProductID:   it.ProductID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
		})
	}
	return p
}

// Submit validates the form and either places a cash order or captures the
// payload and moves to the card step. Backend failures leave the checkout
// in the delivery step with the server's message in the view.
func (c *Checkout) Submit(ctx context.Context, f models.CheckoutForm) (CheckoutView, error) {
	ctx, span := tracer.Start(ctx, "checkout.submit")
	defer span.End()

	c.ensureAvailability(ctx)

	c.mu.Lock()
	view, order, err := c.submitLocked(ctx, f)
	c.mu.Unlock()
	if err != nil || order == nil {
		return view, err
	}

	span.SetAttributes(attribute.String("payment_method", string(order.payload.PaymentMethod)))
	if err := c.place(ctx, *order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c.View(ctx), err
	}
	return c.View(ctx), nil
}

// submitLocked returns a placement when a cash order should be posted. The
// checkout is then marked placing until place finishes.
func (c *Checkout) submitLocked(ctx context.Context, f models.CheckoutForm) (CheckoutView, *placement, error) {
	c.touched = c.deps.now()

	if c.placing {
		return c.viewLocked(ctx), nil, ErrOrderInProgress
	}
	if c.step != StepDelivery {
		return c.viewLocked(ctx), nil, ErrWrongStep
	}
	c.lastError = ""
	if err := c.setFormLocked(f); err != nil {
		return c.viewLocked(ctx), nil, err
	}
	if err := c.validateLocked(); err != nil {
		return c.viewLocked(ctx), nil, err
	}
	cart := c.deps.Cart.Cart(ctx, c.sessionID)
	if len(cart.Items) == 0 {
		return c.viewLocked(ctx), nil, ErrEmptyCart
	}

	payload := buildPayload(c.form, cart.Items)
	if payload.PaymentMethod == models.PaymentCash {
		c.placing = true
		return c.viewLocked(ctx), &placement{payload: payload, totals: cart}, nil
	}

	c.held = &payload
	c.heldTotals = cart
	c.session = nil
	c.step = StepCard
	c.initPending = true
	c.attempt++
	log.Printf("Checkout.Submit - Session %s: card step, attempt %d", c.sessionID, c.attempt)

	req := payment.SessionRequest{
		Amount:        cart.Total,
		DeliveryFee:   cart.DeliveryFee,
		CustomerName:  payload.CustomerName,
		Items:         payload.Items,
		ReturnBaseURL: c.deps.ReturnBaseURL,
	}
	c.inflight.Add(1)
	go c.initSession(c.attempt, req)

	return c.viewLocked(ctx), nil, nil
}

// initSession runs outside any request. Its result only applies if the
// checkout is still in the same card attempt and has no session yet.
func (c *Checkout) initSession(attempt int, req payment.SessionRequest) {
	defer c.inflight.Done()

	timeout := c.deps.InitTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "checkout.payment_session")
	defer span.End()

	session, err := c.deps.Payments.InitiateSession(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != attempt || c.step != StepCard || c.session != nil {
		log.Printf("Checkout.initSession - Session %s: discarding stale result for attempt %d", c.sessionID, attempt)
		return
	}
	c.initPending = false
	if err != nil {
		span.RecordError(err)
		log.Printf("Checkout.initSession - Session %s: %v", c.sessionID, err)
		c.lastError = errorMessage(err, msgInitFailed)
		return
	}
	c.session = &session
	log.Printf("Checkout.initSession - Session %s: payment session %s ready", c.sessionID, session.LowProfileID)
}

// FrameLoaded is called when the master frame reports it loaded. It returns
// the init message and how long the page should wait before posting it.
func (c *Checkout) FrameLoaded() (payment.Message, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepCard {
		return nil, 0, ErrWrongStep
	}
	if c.session == nil {
		return nil, 0, ErrNoSession
	}
	return c.deps.Payments.InitMessage(*c.session), c.deps.InitDelay, nil
}

// Pay builds the transaction message for the master frame. The receipt is
// built from the held payload, never from the live cart.
func (c *Checkout) Pay(req payment.TransactionRequest) (payment.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepCard {
		return nil, ErrWrongStep
	}
	if c.session == nil {
		return nil, ErrNoSession
	}

	doc := payment.Document{
		Name:     req.CardOwnerName,
		Email:    req.CardOwnerEmail,
		Phone:    req.CardOwnerPhone,
		Products: make([]payment.DocumentLine, 0, len(c.held.Items)+1),
	}
	for _, it := range c.held.Items {
		doc.Products = append(doc.Products, payment.DocumentLine{
			Description: it.ProductName,
			Quantity:    it.Quantity,
			UnitCost:    it.UnitPrice,
		})
	}
	if c.heldTotals.DeliveryFee.IsPositive() {
		doc.Products = append(doc.Products, payment.DocumentLine{
			Description: "דמי משלוח",
			Quantity:    1,
			UnitCost:    c.heldTotals.DeliveryFee,
		})
	}
	req.Document = doc

	msg, err := c.deps.Payments.SubmitTransaction(*c.session, req)
	if err != nil {
		c.lastError = err.Error()
		return nil, &ValidationError{Field: "card", Message: err.Error()}
	}
	c.lastError = ""
	return msg, nil
}

// HandleMessage consumes a frame message relayed by the page. It only
// listens in the card step once a session exists; anything else, including
// messages from untrusted origins, is ignored. A positive result posts the
// held payload exactly once.
func (c *Checkout) HandleMessage(ctx context.Context, in payment.Inbound) (CheckoutView, error) {
	c.mu.Lock()
	c.touched = c.deps.now()

	if c.step != StepCard || c.session == nil || c.placing {
		defer c.mu.Unlock()
		return c.viewLocked(ctx), nil
	}
	res, err := c.deps.Payments.ReceiveResult(in)
	if err != nil {
		defer c.mu.Unlock()
		if errors.Is(err, payment.ErrUntrustedOrigin) {
			log.Printf("Checkout.HandleMessage - Session %s: ignoring message from %s", c.sessionID, in.Origin)
		}
		return c.viewLocked(ctx), nil
	}
	if !res.Success {
		defer c.mu.Unlock()
		c.lastError = res.Message
		if c.lastError == "" {
			c.lastError = msgPaymentFailed
		}
		log.Printf("Checkout.HandleMessage - Session %s: payment declined: %s", c.sessionID, c.lastError)
		return c.viewLocked(ctx), nil
	}

	c.placing = true
	order := placement{payload: *c.held, totals: c.heldTotals}
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "checkout.card_success")
	defer span.End()
	if err := c.place(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c.View(ctx), err
	}
	return c.View(ctx), nil
}

// place posts the order and finishes the checkout. The caller has set
// placing and does not hold mu. On failure the step is unchanged and the
// message is kept for the view.
func (c *Checkout) place(ctx context.Context, order placement) error {
	orderID, err := c.deps.Orders.CreateOrder(ctx, order.payload)
	if err != nil {
		log.Printf("Checkout.place - Session %s: order failed: %v", c.sessionID, err)
		c.mu.Lock()
		c.placing = false
		c.lastError = errorMessage(err, msgOrderFailed)
		c.mu.Unlock()
		return err
	}

	log.Printf("Checkout.place - Session %s: order %s created (%s, total %s)", c.sessionID, orderID, order.payload.PaymentMethod, order.totals.Total)
	if err := c.deps.Cart.Clear(ctx, c.sessionID); err != nil {
		log.Printf("Checkout.place - Session %s: error clearing cart: %v", c.sessionID, err)
	}

	c.mu.Lock()
	c.placing = false
	c.step = StepDone
	c.orderID = orderID
	c.lastError = ""
	c.held = nil
	c.session = nil
	c.initPending = false
	c.attempt++
	c.mu.Unlock()

	c.deps.Availability.Invalidate(ctx)
	recordOrder(ctx, order.payload.PaymentMethod)
	c.announce(ctx, orderID, order.payload, order.totals)
	return nil
}

func (c *Checkout) announce(ctx context.Context, orderID string, payload models.OrderPayload, totals models.Cart) {
	if c.deps.Events != nil {
		err := c.deps.Events.PublishOrderPlaced(ctx, events.OrderPlaced{
			OrderID:          orderID,
			PaymentMethod:    payload.PaymentMethod,
			CustomerName:     payload.CustomerName,
			DeliveryCity:     payload.DeliveryCity,
			DeliveryTimeSlot: payload.DeliveryTimeSlot,
			ExpressDelivery:  payload.ExpressDelivery,
			Items:            totals.Count,
			Total:            totals.Total,
			PlacedAt:         c.deps.now(),
		})
		if err != nil {
			log.Printf("Checkout.announce - Error publishing order %s: %v", orderID, err)
		}
	}
	if c.deps.Notifier != nil {
		if err := c.deps.Notifier.NotifyNewOrder(orderID, payload, totals); err != nil {
			log.Printf("Checkout.announce - Error sending notification for order %s: %v", orderID, err)
		}
	}
}

// Cancel leaves the card step, discarding the held payload and session. It
// has no effect once the order is being posted.
func (c *Checkout) Cancel(ctx context.Context) CheckoutView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepCard && !c.placing {
		c.step = StepDelivery
		c.held = nil
		c.session = nil
		c.initPending = false
		c.lastError = ""
		c.attempt++
		log.Printf("Checkout.Cancel - Session %s: back to delivery", c.sessionID)
	}
	return c.viewLocked(ctx)
}

// View returns the current snapshot.
func (c *Checkout) View(ctx context.Context) CheckoutView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(ctx)
}

func (c *Checkout) viewLocked(ctx context.Context) CheckoutView {
	v := CheckoutView{
		Step:             c.step,
		Form:             c.form,
		Slots:            c.available,
		ExpressAvailable: c.express,
		Loading:          c.initPending,
		Placing:          c.placing,
		Error:            c.lastError,
		OrderID:          c.orderID,
	}
	if v.Slots == nil {
		v.Slots = []models.DeliverySlot{}
	}
	if c.step == StepCard {
		v.Cart = c.heldTotals
	} else {
		v.Cart = c.deps.Cart.Cart(ctx, c.sessionID)
	}
	if c.session != nil {
		s := *c.session
		frames := c.deps.Payments.Frames(s)
		v.Session = &s
		v.Frames = &frames
	}
	return v
}

// wait blocks until in-flight session initiations finish.
func (c *Checkout) wait() {
	c.inflight.Wait()
}

func errorMessage(err error, fallback string) string {
	var api interface{ ShopperMessage() string }
	if errors.As(err, &api) {
		if m := api.ShopperMessage(); m != "" {
			return m
		}
	}
	return fallback
}

var ordersCounter metric.Int64Counter

func init() {
	var err error
	ordersCounter, err = otel.Meter("krayotmarket/services").Int64Counter(
		"storefront.orders.created",
		metric.WithDescription("Orders created through checkout"),
	)
	if err != nil {
		log.Printf("services.init - Error creating orders counter: %v", err)
	}
}

func recordOrder(ctx context.Context, method models.PaymentMethod) {
	if ordersCounter == nil {
		return
	}
	ordersCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
}

// CheckoutRegistry holds one Checkout per shopper session. Idle checkouts
// are dropped after ttl.
type CheckoutRegistry struct {
	deps *CheckoutDeps
	ttl  time.Duration
	mu   sync.Mutex
	m    map[string]*Checkout
}

func NewCheckoutRegistry(deps *CheckoutDeps, ttl time.Duration) *CheckoutRegistry {
	return &CheckoutRegistry{deps: deps, ttl: ttl, m: make(map[string]*Checkout)}
}

// Get returns the session's checkout, creating it on first use.
func (r *CheckoutRegistry) Get(sessionID string) *Checkout {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	c, ok := r.m[sessionID]
	if !ok {
		c = newCheckout(r.deps, sessionID)
		r.m[sessionID] = c
	}
	return c
}

func (r *CheckoutRegistry) pruneLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.deps.now().Add(-r.ttl)
	for id, c := range r.m {
		// A checkout whose lock is taken is in use, so it is not idle.
		if !c.mu.TryLock() {
			continue
		}
		idle := c.touched.Before(cutoff) && !c.initPending && !c.placing
		c.mu.Unlock()
		if idle {
			delete(r.m, id)
		}
	}
}
