package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scraplink/scraplink-backend/pkg/db/models"
	"github.com/scraplink/scraplink-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedEvent(t *testing.T, db *gorm.DB) models.OutboxEvent {
	t.Helper()
	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"v":1}`),
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func TestMarkPublishedTx(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	event := seedEvent(t, db)

	if err := repo.MarkPublishedTx(db, event.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	var got models.OutboxEvent
	if err := db.First(&got, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if got.PublishedAt == nil {
		t.Fatal("expected published_at to be set")
	}
}

func TestMarkFailedTxIncrementsAttempts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	event := seedEvent(t, db)

	if err := repo.MarkFailedTx(db, event.ID, errors.New("broker down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailedTx(db, event.ID, errors.New("broker still down")); err != nil {
		t.Fatalf("mark failed again: %v", err)
	}

	var got models.OutboxEvent
	if err := db.First(&got, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if got.AttemptCount != 2 {
		t.Fatalf("attempt_count = %d, want 2", got.AttemptCount)
	}
	if got.LastError == nil || *got.LastError != "broker still down" {
		t.Fatalf("last_error = %v, want latest failure", got.LastError)
	}
}

func TestMarkTerminalTxPinsAttempts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	event := seedEvent(t, db)

	if err := repo.MarkTerminalTx(db, event.ID, errors.New("unroutable event"), 10); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	var got models.OutboxEvent
	if err := db.First(&got, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if got.AttemptCount != 10 {
		t.Fatalf("attempt_count = %d, want 10", got.AttemptCount)
	}
}

func TestTxRequired(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	if err := repo.MarkPublishedTx(nil, uuid.New()); err == nil {
		t.Fatal("expected error for nil transaction")
	}
	if err := repo.Insert(nil, models.OutboxEvent{}); err == nil {
		t.Fatal("expected error for nil transaction")
	}
}

func TestDLQInsertTruncatesLongErrors(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewDLQRepository(db)

	long := strings.Repeat("x", maxDLQErrorLen+200)
	eventID := uuid.New()
	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventPaymentPaid,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		AttemptCount:  10,
		ErrorMessage:  &long,
		FailedAt:      time.Now().UTC(),
	}
	if err := repo.InsertTx(db, entry); err != nil {
		t.Fatalf("insert dlq: %v", err)
	}

	got, err := repo.FindByEventID(context.Background(), eventID)
	if err != nil {
		t.Fatalf("find by event id: %v", err)
	}
	if got == nil {
		t.Fatal("expected dlq row")
	}
	if got.ErrorMessage == nil || len(*got.ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("error message not truncated to %d", maxDLQErrorLen)
	}
}

func TestDLQFindMissingReturnsNil(t *testing.T) {
	t.Parallel()

	repo := NewDLQRepository(newTestDB(t))
	got, err := repo.FindByEventID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("find by event id: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing row")
	}
}

func TestDLQListNewestFirst(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewDLQRepository(db)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		entry := models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			FailedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.InsertTx(db, entry); err != nil {
			t.Fatalf("insert dlq: %v", err)
		}
	}

	rows, err := repo.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if !rows[0].FailedAt.After(rows[1].FailedAt) {
		t.Fatal("expected newest failure first")
	}
}
