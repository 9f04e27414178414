package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"soleledger/internal/chart"
	"soleledger/internal/config"
	"soleledger/internal/store"
	"soleledger/internal/websocket"
)

func newBusinessHandler(businesses stubBusinessStore, audit stubAuditStore) *Handler {
	cfg := config.Config{JWTSecret: "test-secret", AllowedOrigins: "*"}
	return New(stubReconcileDB{}, fakeTxRunner{}, cfg, businesses, stubAccountStore{}, stubCategoryStore{},
		stubTransactionStore{}, stubJournalStore{}, audit, stubBalanceService{}, stubSyncService{},
		stubExtractor{}, chart.Default(), websocket.NewHub())
}

func TestCreateBusinessProvisionsAndAudits(t *testing.T) {
	var createdID, createdName, auditAction string
	businesses := stubBusinessStore{
		getFn: func(ctx context.Context, businessID string) (store.Business, error) {
			return store.Business{}, sql.ErrNoRows
		},
		createFn: func(ctx context.Context, tx store.Execer, id, name string) error {
			createdID, createdName = id, name
			return nil
		},
	}
	audit := stubAuditStore{
		logFn: func(ctx context.Context, tx store.Execer, businessID, actorID, action, entityType, entityID, data string) error {
			auditAction = action
			return nil
		},
	}
	handler := newBusinessHandler(businesses, audit)

	req := authedRequest(t, http.MethodPost, "/business", strings.NewReader(`{"name":"Maple Cafe"}`))
	rr := serveAuthed(handler.CreateBusiness, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if createdID != "biz-1" || createdName != "Maple Cafe" {
		t.Errorf("unexpected create args: %q %q", createdID, createdName)
	}
	if auditAction != "business_created" {
		t.Errorf("expected business_created audit entry, got %q", auditAction)
	}
}

func TestCreateBusinessExistingReturnsProfile(t *testing.T) {
	businesses := stubBusinessStore{
		getFn: func(ctx context.Context, businessID string) (store.Business, error) {
			return store.Business{ID: businessID, Name: "Maple Cafe"}, nil
		},
		createFn: func(ctx context.Context, tx store.Execer, id, name string) error {
			t.Fatal("create should not run for an existing business")
			return nil
		},
	}
	handler := newBusinessHandler(businesses, stubAuditStore{})

	req := authedRequest(t, http.MethodPost, "/business", strings.NewReader(`{"name":"Renamed"}`))
	rr := serveAuthed(handler.CreateBusiness, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["name"] != "Maple Cafe" {
		t.Errorf("expected existing name, got %v", body["name"])
	}
}

func TestCreateBusinessRequiresName(t *testing.T) {
	handler := newBusinessHandler(stubBusinessStore{}, stubAuditStore{})

	req := authedRequest(t, http.MethodPost, "/business", strings.NewReader(`{"name":"  "}`))
	rr := serveAuthed(handler.CreateBusiness, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetBusinessNotFound(t *testing.T) {
	businesses := stubBusinessStore{
		getFn: func(ctx context.Context, businessID string) (store.Business, error) {
			return store.Business{}, sql.ErrNoRows
		},
	}
	handler := newBusinessHandler(businesses, stubAuditStore{})

	req := authedRequest(t, http.MethodGet, "/business", nil)
	rr := serveAuthed(handler.GetBusiness, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestListAuditLogsPassesPaging(t *testing.T) {
	var gotLimit, gotOffset int
	audit := stubAuditStore{
		listFn: func(ctx context.Context, businessID string, limit, offset int) ([]map[string]any, error) {
			gotLimit, gotOffset = limit, offset
			return []map[string]any{{"action": "account_linked"}}, nil
		},
	}
	handler := newBusinessHandler(stubBusinessStore{}, audit)

	req := authedRequest(t, http.MethodGet, "/audit?page=3&limit=20", nil)
	rr := serveAuthed(handler.ListAuditLogs, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotLimit != 20 || gotOffset != 40 {
		t.Errorf("expected limit 20 offset 40, got %d %d", gotLimit, gotOffset)
	}
}
