package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/mvaleed/acs/internal/domain"
)

// Tx implements persistence.Tx over a single pgx.Tx.
type Tx struct {
	pgxTx pgx.Tx
}

func (t *Tx) SaveEntity(ctx context.Context, kind domain.Kind, id int64, attrs any) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO entity (id, kind, attrs_json)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET kind = $2, attrs_json = $3`,
		id, kind.String(), payload,
	)
	return mapError(err)
}

func (t *Tx) SaveEdge(ctx context.Context, parentID, childID int64, kind domain.EdgeKind) error {
	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO edge (parent_id, child_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (parent_id, child_id) DO UPDATE SET kind = $3`,
		parentID, childID, string(kind),
	)
	return mapError(err)
}

func (t *Tx) SavePermission(ctx context.Context, entityID int64, p domain.Permission) error {
	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO permission (id, entity_id, uri, verb, grant_flag, deny_flag, scheme, priority, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			uri = $3, verb = $4, grant_flag = $5, deny_flag = $6, scheme = $7, priority = $8, valid_from = $9, valid_until = $10`,
		p.ID, entityID, p.URI, string(p.Verb), p.Grant, p.Deny, p.Scheme, p.Priority, p.ValidFrom, p.ValidUntil,
	)
	return mapError(err)
}

func (t *Tx) DeleteEntity(ctx context.Context, id int64) error {
	_, err := t.pgxTx.Exec(ctx, `DELETE FROM entity WHERE id = $1`, id)
	return mapError(err)
}

func (t *Tx) DeleteEdge(ctx context.Context, parentID, childID int64) error {
	_, err := t.pgxTx.Exec(ctx, `DELETE FROM edge WHERE parent_id = $1 AND child_id = $2`, parentID, childID)
	return mapError(err)
}

func (t *Tx) DeletePermission(ctx context.Context, entityID int64, key domain.PermKey) error {
	_, err := t.pgxTx.Exec(ctx, `
		DELETE FROM permission
		WHERE entity_id = $1 AND LOWER(uri) = LOWER($2) AND verb = $3 AND scheme = $4`,
		entityID, key.URI, string(key.Verb), key.Scheme,
	)
	return mapError(err)
}

func (t *Tx) Commit(ctx context.Context) error   { return mapError(t.pgxTx.Commit(ctx)) }
func (t *Tx) Rollback(ctx context.Context) error { return mapError(t.pgxTx.Rollback(ctx)) }
