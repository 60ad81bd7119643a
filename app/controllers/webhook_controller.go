package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/coursebeam/entitlesync/app/models"
	"github.com/coursebeam/entitlesync/app/repository"
	"github.com/coursebeam/entitlesync/internal/pkg/env"
	"github.com/coursebeam/entitlesync/internal/pkg/reconcile"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultProcessTimeout = 15 * time.Second

// Stats records ingestion counters per provider. A nil Stats disables
// recording; failures inside an implementation must be swallowed.
type Stats interface {
	Received(provider string)
	Processed(provider string)
	Failed(provider string)
}

// WebhookController owns the ingestion surface: it accepts order webhooks,
// persists them to the event log before any business logic runs, hands them
// to the reconciliation engine and records the outcome on the same row.
type WebhookController struct {
	engine   *reconcile.Engine
	eventLog repository.EventLogRepository
	stats    Stats
	secret   string
	timeout  time.Duration
}

// NewWebhookController wires the ingestion endpoint from its dependencies.
func NewWebhookController(engine *reconcile.Engine, eventLog repository.EventLogRepository, stats Stats) *WebhookController {
	timeout := defaultProcessTimeout
	if raw := env.GetEnv("WEBHOOK_PROCESS_TIMEOUT_SECONDS", ""); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	return &WebhookController{
		engine:   engine,
		eventLog: eventLog,
		stats:    stats,
		secret:   env.GetEnv("WEBHOOK_SECRET", ""),
		timeout:  timeout,
	}
}

// HandleOrderWebhook ingests one order event delivery.
//
// Response contract: 400 for a malformed body (nothing is logged), 401 for a
// bad signature, 503 when a resend could succeed (unknown customer, store
// unavailable, timeout), 200 otherwise — including terminal business
// failures, so the sender is not induced to retry events that can never
// process.
func (wc *WebhookController) HandleOrderWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if wc.stats != nil {
		wc.stats.Received(provider)
	}

	event, err := reconcile.ParseOrderEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid payload: " + err.Error(),
		})
	}

	signature := strings.TrimSpace(c.Get("X-Webhook-Signature"))
	signatureValid := reconcile.VerifyWebhookSignature(rawBody, signature, wc.secret)

	ctx, cancel := context.WithTimeout(context.Background(), wc.timeout)
	defer cancel()

	row := &models.InboundEvent{
		UUID:            uuid.New().String(),
		Provider:        provider,
		ProviderEventID: firstHeaderValue(c, "X-Webhook-Event-ID", "X-Webhook-Delivery"),
		EventType:       event.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
		Processed:       false,
	}
	if err := wc.eventLog.Record(ctx, row); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "event could not be recorded",
		})
	}

	if wc.secret != "" && !signatureValid {
		wc.markOutcome(row.ID, false, "invalid webhook signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "invalid signature",
			"event":   row.UUID,
		})
	}

	result := wc.engine.Process(ctx, provider, event)
	wc.markOutcome(row.ID, result.Processed, result.ErrorMessage())
	wc.recordResult(provider, result)

	return wc.respond(c, row.UUID, result)
}

// HandleReplay re-runs reconciliation over the stored payload of an existing
// event row. The operator remedy for retryable failures such as an unknown
// customer: no new row is created, the original row's outcome is updated.
func (wc *WebhookController) HandleReplay(c *fiber.Ctx) error {
	eventUUID := strings.TrimSpace(c.Params("uuid"))

	ctx, cancel := context.WithTimeout(context.Background(), wc.timeout)
	defer cancel()

	row, err := wc.eventLog.GetByUUID(ctx, eventUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "event not found",
			})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "event lookup failed",
		})
	}

	event, err := reconcile.ParseOrderEvent([]byte(row.PayloadJSON))
	if err != nil {
		wc.markOutcome(row.ID, false, err.Error())
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "stored payload is not replayable: " + err.Error(),
		})
	}

	result := wc.engine.Process(ctx, row.Provider, event)
	wc.markOutcome(row.ID, result.Processed, result.ErrorMessage())
	wc.recordResult(row.Provider, result)

	return wc.respond(c, row.UUID, result)
}

func (wc *WebhookController) recordResult(provider string, result reconcile.Result) {
	if wc.stats == nil {
		return
	}
	if result.Processed {
		wc.stats.Processed(provider)
	} else {
		wc.stats.Failed(provider)
	}
}

// markOutcome updates the log row by id. It runs on its own short context so
// the outcome still gets written when the processing context has expired.
func (wc *WebhookController) markOutcome(id uint, processed bool, errorMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = wc.eventLog.MarkOutcome(ctx, id, processed, errorMessage)
}

func (wc *WebhookController) respond(c *fiber.Ctx, eventUUID string, result reconcile.Result) error {
	if result.Processed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"message": "processed",
			"event":   eventUUID,
		})
	}
	status := fiber.StatusOK
	if result.Retryable {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": result.ErrorMessage(),
		"event":   eventUUID,
	})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
