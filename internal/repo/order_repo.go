package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/orders/internal/domain"
)

// OrderRepo — репозиторий для работы с orders.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// orderColumns — общий список колонок для SELECT.
// total_price приводится к float8, чтобы сканировать NUMERIC в float64.
const orderColumns = `id, user_id, items, total_price::float8, status, created_at, processed_at`

// Create сохраняет новый заказ. Коммит происходит сразу (autocommit).
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	query := `
		INSERT INTO orders (id, user_id, items, total_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		order.ID,
		order.UserID,
		itemsJSON,
		order.TotalPrice,
		string(order.Status),
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID возвращает заказ по ID без проверки владельца.
// Используется фоновой обработкой.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// GetForUser возвращает заказ, только если он принадлежит пользователю.
func (r *OrderRepo) GetForUser(ctx context.Context, id uuid.UUID, userID int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`
	order, err := scanOrder(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order for user: %w", err)
	}
	return order, nil
}

// ListByUser возвращает все заказы пользователя, новые первыми.
func (r *OrderRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

// UpdateStatus меняет статус заказа пользователя и возвращает обновлённый заказ.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, userID int64, status domain.OrderStatus) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET status = $3
		WHERE id = $1 AND user_id = $2
		RETURNING ` + orderColumns
	order, err := scanOrder(r.pool.QueryRow(ctx, query, id, userID, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return order, nil
}

// MarkProcessed атомарно выставляет processed_at.
// Возвращает false, если заказ уже был обработан другой попыткой.
func (r *OrderRepo) MarkProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE orders
		SET processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark order processed: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ClaimStale отбирает заказы без processed_at, созданные раньше before,
// и в той же команде помечает их republished_at = NOW().
//
// Заказ, помеченный позже before, пропускается: между повторными
// публикациями одного заказа проходит не меньше окна. maxRepublish > 0
// ограничивает число повторных публикаций на заказ.
func (r *OrderRepo) ClaimStale(ctx context.Context, before time.Time, maxRepublish, limit int) ([]domain.Order, error) {
	query := `
		UPDATE orders o
		SET republished_at = NOW(), republish_count = o.republish_count + 1
		FROM (
			SELECT id FROM orders
			WHERE processed_at IS NULL
			  AND created_at < $1
			  AND (republished_at IS NULL OR republished_at < $1)
			  AND ($2::int = 0 OR republish_count < $2::int)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		) stale
		WHERE o.id = stale.id
		RETURNING o.id, o.user_id, o.items, o.total_price::float8, o.status, o.created_at, o.processed_at`
	return r.list(ctx, query, before, maxRepublish, limit)
}

func (r *OrderRepo) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order     domain.Order
		itemsJSON []byte
		status    string
	)
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&itemsJSON,
		&order.TotalPrice,
		&status,
		&order.CreatedAt,
		&order.ProcessedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	return &order, nil
}
