package storage

import (
	"context"
	"database/sql"
	"time"

	"estoque/internal/core"
	"estoque/internal/identity"
)

// Both dialects accept "?" placeholders, so the statements are shared.

const recordColumns = `id, owner_id, name, quantity_purchased, purchase_price, sale_price, quantity_sold, last_sale_at`

const createRecord = `INSERT INTO inventory_records (` + recordColumns + `, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateRecordParams struct {
	Record    core.InventoryRecord
	CreatedAt time.Time
}

func (q *Queries) CreateRecord(ctx context.Context, arg CreateRecordParams) error {
	r := arg.Record
	_, err := q.db.ExecContext(ctx, createRecord,
		r.ID,
		r.OwnerID,
		r.Name,
		r.QuantityPurchased,
		r.PurchasePrice,
		r.SalePrice,
		r.QuantitySold,
		toMillis(r.LastSaleDate),
		arg.CreatedAt.UnixNano(),
		arg.CreatedAt.UnixNano(),
	)
	return err
}

const getRecord = `SELECT ` + recordColumns + ` FROM inventory_records WHERE owner_id = ? AND id = ?`

func (q *Queries) GetRecord(ctx context.Context, ownerID, id string) (core.InventoryRecord, error) {
	return scanRecord(q.db.QueryRowContext(ctx, getRecord, ownerID, id))
}

// GetRecordForUpdate reads a record inside a transaction. lockClause is
// appended verbatim ("FOR UPDATE" on MySQL, empty on SQLite).
func (q *Queries) GetRecordForUpdate(ctx context.Context, ownerID, id, lockClause string) (core.InventoryRecord, error) {
	query := getRecord
	if lockClause != "" {
		query += " " + lockClause
	}
	return scanRecord(q.db.QueryRowContext(ctx, query, ownerID, id))
}

const listRecords = `SELECT ` + recordColumns + ` FROM inventory_records WHERE owner_id = ? ORDER BY created_at, id`

func (q *Queries) ListRecords(ctx context.Context, ownerID string) ([]core.InventoryRecord, error) {
	rows, err := q.db.QueryContext(ctx, listRecords, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.InventoryRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateRecord = `UPDATE inventory_records
SET name = ?, quantity_purchased = ?, purchase_price = ?, sale_price = ?, quantity_sold = ?, last_sale_at = ?, updated_at = ?
WHERE owner_id = ? AND id = ?`

func (q *Queries) UpdateRecord(ctx context.Context, r core.InventoryRecord, updatedAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateRecord,
		r.Name,
		r.QuantityPurchased,
		r.PurchasePrice,
		r.SalePrice,
		r.QuantitySold,
		toMillis(r.LastSaleDate),
		updatedAt.UnixNano(),
		r.OwnerID,
		r.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteRecord = `DELETE FROM inventory_records WHERE owner_id = ? AND id = ?`

func (q *Queries) DeleteRecord(ctx context.Context, ownerID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRecord, ownerID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listOwners = `SELECT DISTINCT owner_id FROM inventory_records ORDER BY owner_id`

func (q *Queries) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

const createUser = `INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, u identity.User) error {
	_, err := q.db.ExecContext(ctx, createUser, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt.UnixNano())
	return err
}

const userColumns = `id, email, display_name, password_hash, created_at`

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id string) (identity.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes a row. NULL quantities and prices become zero and a
// NULL sale date stays nil.
func scanRecord(row scanner) (core.InventoryRecord, error) {
	var (
		r         core.InventoryRecord
		qtyBought sql.NullInt64
		qtySold   sql.NullInt64
		lastSale  sql.NullInt64
	)
	if err := row.Scan(
		&r.ID,
		&r.OwnerID,
		&r.Name,
		&qtyBought,
		&r.PurchasePrice,
		&r.SalePrice,
		&qtySold,
		&lastSale,
	); err != nil {
		return core.InventoryRecord{}, err
	}
	r.QuantityPurchased = qtyBought.Int64
	r.QuantitySold = qtySold.Int64
	if lastSale.Valid {
		t := time.UnixMilli(lastSale.Int64).UTC()
		r.LastSaleDate = &t
	}
	return r, nil
}

func scanUser(row scanner) (identity.User, error) {
	var (
		u         identity.User
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &createdAt); err != nil {
		return identity.User{}, err
	}
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	return u, nil
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
