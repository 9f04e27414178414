package store

import "context"

type AuditStore struct {
	db DB
}

type auditRow struct {
	ID         string  `db:"id"`
	BusinessID string  `db:"business_id"`
	ActorID    *string `db:"actor_id"`
	Action     string  `db:"action"`
	EntityType string  `db:"entity_type"`
	EntityID   string  `db:"entity_id"`
	Data       string  `db:"data"`
	CreatedAt  any     `db:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, businessID, actorID, action, entityType, entityID, data string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, business_id, actor_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6)
	`, businessID, actorID, action, entityType, entityID, data)
	return err
}

func (s *AuditStore) List(ctx context.Context, businessID string, limit, offset int) ([]map[string]any, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, business_id, actor_id, action, entity_type, entity_id, data, created_at
		FROM audit_logs
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	logs := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		actor := ""
		if row.ActorID != nil {
			actor = *row.ActorID
		}
		logs = append(logs, map[string]any{
			"id":          row.ID,
			"business_id": row.BusinessID,
			"actor_id":    actor,
			"action":      row.Action,
			"entity_type": row.EntityType,
			"entity_id":   row.EntityID,
			"data":        row.Data,
			"created_at":  row.CreatedAt,
		})
	}
	return logs, nil
}
