package domain

import (
	"strings"
	"testing"
	"time"
)

func TestIdempotency_TableName(t *testing.T) {
	if got := (Idempotency{}).TableName(); got != "idempotency" {
		t.Fatalf("TableName() = %q; want idempotency", got)
	}
}

func TestIdempotency_UniquePerUserScopeKey(t *testing.T) {
	db := newDomainDB(t, "idem_unique")
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	now := time.Now().UTC()
	first := &Idempotency{
		ID: "i1", UserID: "u1", ScopeID: "f1", Key: "k1",
		ResourceID: "g1", Status: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("insert first: %v", err)
	}

	// Same (user, scope, key) must be rejected.
	dup := *first
	dup.ID = "i2"
	err := db.Create(&dup).Error
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "unique") {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// Different scope with the same key is fine.
	other := *first
	other.ID = "i3"
	other.ScopeID = "f2"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}
}
