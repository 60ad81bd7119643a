package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coursebeam/entitlesync/app/models"
	"github.com/coursebeam/entitlesync/app/repository"
	"github.com/coursebeam/entitlesync/internal/pkg/notifier"
	"github.com/coursebeam/entitlesync/internal/pkg/reconcile"
)

type memUserRepo struct {
	byEmail map[string]uint
}

func (m *memUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if id, ok := m.byEmail[strings.ToLower(email)]; ok {
		return &models.User{ID: id, Email: email}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type memProductRepo struct{}

func (m *memProductRepo) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	return &models.Product{ID: id, Title: fmt.Sprintf("Product %d", id)}, nil
}

type memMappingRepo struct {
	byRef map[string]uint
}

func (m *memMappingRepo) FindActive(ctx context.Context, provider, externalRef string) (*models.ProductMapping, error) {
	if productID, ok := m.byRef[provider+"|"+externalRef]; ok {
		return &models.ProductMapping{Provider: provider, ExternalRef: externalRef, ProductID: productID}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type memEntitlementRepo struct {
	rows     []models.Entitlement
	panicked bool
	doPanic  bool
}

func (m *memEntitlementRepo) Exists(ctx context.Context, userID, productID uint) (bool, error) {
	for _, row := range m.rows {
		if row.UserID == userID && row.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEntitlementRepo) Grant(ctx context.Context, entitlement *models.Entitlement) error {
	if m.doPanic {
		m.panicked = true
		panic("injected entitlement store fault")
	}
	for _, row := range m.rows {
		if row.UserID == entitlement.UserID && row.ProductID == entitlement.ProductID {
			return repository.ErrAlreadyGranted
		}
	}
	m.rows = append(m.rows, *entitlement)
	return nil
}

func (m *memEntitlementRepo) RevokeByOrder(ctx context.Context, orderID string, productID uint) (int64, error) {
	var kept []models.Entitlement
	var removed int64
	for _, row := range m.rows {
		if row.ProductID == productID && row.OrderID != nil && *row.OrderID == orderID {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

func (m *memEntitlementRepo) ListByUser(ctx context.Context, userID uint) ([]models.Entitlement, error) {
	return m.rows, nil
}

type memNotificationRepo struct {
	created []models.Notification
}

func (m *memNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	m.created = append(m.created, *notification)
	return nil
}

type memEventLog struct {
	rows      map[uint]*models.InboundEvent
	nextID    uint
	recordErr error
}

func newMemEventLog() *memEventLog {
	return &memEventLog{rows: map[uint]*models.InboundEvent{}}
}

func (m *memEventLog) Record(ctx context.Context, event *models.InboundEvent) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.nextID++
	event.ID = m.nextID
	stored := *event
	m.rows[event.ID] = &stored
	return nil
}

func (m *memEventLog) MarkOutcome(ctx context.Context, id uint, processed bool, errorMessage string) error {
	row, ok := m.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.Processed = processed
	row.ErrorMessage = errorMessage
	return nil
}

func (m *memEventLog) GetByUUID(ctx context.Context, uuid string) (*models.InboundEvent, error) {
	for _, row := range m.rows {
		if row.UUID == uuid {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type webhookTestEnv struct {
	app          *fiber.App
	users        *memUserRepo
	entitlements *memEntitlementRepo
	notes        *memNotificationRepo
	eventLog     *memEventLog
}

func newWebhookTestEnv() *webhookTestEnv {
	env := &webhookTestEnv{
		users:        &memUserRepo{byEmail: map[string]uint{"a@x.com": 1}},
		entitlements: &memEntitlementRepo{},
		notes:        &memNotificationRepo{},
		eventLog:     newMemEventLog(),
	}
	engine := reconcile.NewEngine(
		env.users,
		&memProductRepo{},
		&memMappingRepo{byRef: map[string]uint{"shop|ext-42": 10}},
		env.entitlements,
		notifier.New(env.notes),
		nil,
	)
	wc := NewWebhookController(engine, env.eventLog, nil)

	env.app = fiber.New()
	env.app.Post("/api/v1/webhooks/:provider/orders", wc.HandleOrderWebhook)
	env.app.Post("/api/v1/webhooks/orders/:uuid/replay", wc.HandleReplay)
	return env
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Event   string `json:"event"`
}

func postWebhook(t *testing.T, app *fiber.App, body string, headers map[string]string) (*http.Response, webhookResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/shop/orders", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var parsed webhookResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

const paidBody = `{"event":"order.paid","order_id":"ORD-1","customer":{"email":"a@x.com"},"line_items":[{"product_id":"ext-42"}]}`

func TestHandleOrderWebhook_GrantSuccess(t *testing.T) {
	env := newWebhookTestEnv()

	resp, parsed := postWebhook(t, env.app, paidBody, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, parsed.Success)
	assert.NotEmpty(t, parsed.Event)

	require.Len(t, env.entitlements.rows, 1)
	assert.Equal(t, uint(1), env.entitlements.rows[0].UserID)
	assert.Equal(t, uint(10), env.entitlements.rows[0].ProductID)
	require.Len(t, env.notes.created, 1)
	assert.Equal(t, models.NOTIFICATION_TYPE_ACCESS, env.notes.created[0].Type)

	require.Len(t, env.eventLog.rows, 1)
	row := env.eventLog.rows[1]
	assert.True(t, row.Processed)
	assert.Empty(t, row.ErrorMessage)
	assert.Equal(t, "order.paid", row.EventType)
	assert.Equal(t, "shop", row.Provider)
}

func TestHandleOrderWebhook_MalformedBodyIsNotLogged(t *testing.T) {
	env := newWebhookTestEnv()

	resp, parsed := postWebhook(t, env.app, `{"event":`, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.False(t, parsed.Success)

	assert.Empty(t, env.eventLog.rows, "malformed payloads must not produce event rows")
}

func TestHandleOrderWebhook_UnknownCustomerSignalsRetry(t *testing.T) {
	env := newWebhookTestEnv()
	body := strings.Replace(paidBody, "a@x.com", "nobody@x.com", 1)

	resp, parsed := postWebhook(t, env.app, body, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, parsed.Success)
	assert.Contains(t, parsed.Message, "unknown customer")

	require.Len(t, env.eventLog.rows, 1)
	row := env.eventLog.rows[1]
	assert.False(t, row.Processed)
	assert.NotEmpty(t, row.ErrorMessage)
	assert.Empty(t, env.entitlements.rows)
}

func TestHandleOrderWebhook_UnsupportedTypeIsTerminal(t *testing.T) {
	env := newWebhookTestEnv()
	body := strings.Replace(paidBody, "order.paid", "subscription.renewed", 1)

	resp, parsed := postWebhook(t, env.app, body, nil)
	// 200 so the sender does not retry an event that can never process.
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, parsed.Success)

	require.Len(t, env.eventLog.rows, 1)
	assert.False(t, env.eventLog.rows[1].Processed)
	assert.Contains(t, env.eventLog.rows[1].ErrorMessage, "unsupported event type")
}

func TestHandleOrderWebhook_LogWriteFailure(t *testing.T) {
	env := newWebhookTestEnv()
	env.eventLog.recordErr = errors.New("db down")

	resp, parsed := postWebhook(t, env.app, paidBody, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, parsed.Success)
}

func TestHandleOrderWebhook_LogRowSurvivesProcessingFault(t *testing.T) {
	env := newWebhookTestEnv()
	env.entitlements.doPanic = true

	resp, parsed := postWebhook(t, env.app, paidBody, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, parsed.Success)
	assert.True(t, env.entitlements.panicked)

	require.Len(t, env.eventLog.rows, 1, "the row written before processing must survive the fault")
	row := env.eventLog.rows[1]
	assert.False(t, row.Processed)
	assert.NotEmpty(t, row.ErrorMessage)
}

func TestHandleOrderWebhook_DuplicateDelivery(t *testing.T) {
	env := newWebhookTestEnv()

	_, first := postWebhook(t, env.app, paidBody, nil)
	_, second := postWebhook(t, env.app, paidBody, nil)
	assert.True(t, first.Success)
	assert.True(t, second.Success)

	// Two log rows (one per delivery), one entitlement, one notification.
	assert.Len(t, env.eventLog.rows, 2)
	assert.Len(t, env.entitlements.rows, 1)
	assert.Len(t, env.notes.created, 1)
	assert.True(t, env.eventLog.rows[2].Processed)
}

func TestHandleOrderWebhook_SignatureEnforcedWhenConfigured(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "top-secret")
	env := newWebhookTestEnv()

	resp, parsed := postWebhook(t, env.app, paidBody, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.False(t, parsed.Success)
	require.Len(t, env.eventLog.rows, 1)
	assert.False(t, env.eventLog.rows[1].Processed)
	assert.Contains(t, env.eventLog.rows[1].ErrorMessage, "invalid webhook signature")

	mac := hmac.New(sha256.New, []byte("top-secret"))
	mac.Write([]byte(paidBody))
	signature := hex.EncodeToString(mac.Sum(nil))

	resp, parsed = postWebhook(t, env.app, paidBody, map[string]string{"X-Webhook-Signature": signature})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, parsed.Success)
	assert.True(t, env.eventLog.rows[2].SignatureValid)
}

func TestHandleReplay(t *testing.T) {
	env := newWebhookTestEnv()
	body := strings.Replace(paidBody, "a@x.com", "late@x.com", 1)

	resp, parsed := postWebhook(t, env.app, body, nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	eventUUID := parsed.Event
	require.NotEmpty(t, eventUUID)

	// The user finishes sign-up, an operator replays the stored event.
	env.users.byEmail["late@x.com"] = 7

	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/orders/"+eventUUID+"/replay", nil)
	require.NoError(t, err)
	replayResp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, replayResp.StatusCode)

	var replayParsed webhookResponse
	require.NoError(t, json.NewDecoder(replayResp.Body).Decode(&replayParsed))
	assert.True(t, replayParsed.Success)
	assert.Equal(t, eventUUID, replayParsed.Event)

	require.Len(t, env.entitlements.rows, 1)
	assert.Equal(t, uint(7), env.entitlements.rows[0].UserID)

	// Same row updated in place, no new row recorded.
	assert.Len(t, env.eventLog.rows, 1)
	assert.True(t, env.eventLog.rows[1].Processed)
	assert.Empty(t, env.eventLog.rows[1].ErrorMessage)
}

func TestHandleReplay_UnknownEvent(t *testing.T) {
	env := newWebhookTestEnv()

	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/orders/not-a-real-uuid/replay", nil)
	require.NoError(t, err)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
