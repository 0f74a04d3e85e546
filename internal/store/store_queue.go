package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

func (d *DB) EnqueueMessage(ctx context.Context, item models.MessageQueueItem) (models.MessageQueueItem, error) {
	if item.Priority == 0 {
		item.Priority = 5
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = time.Now()
	}
	if item.MaxRetries == 0 {
		item.MaxRetries = 3
	}
	var out models.MessageQueueItem
	row := d.QueryRowxContext(ctx, `
		INSERT INTO message_queue (
			id, tenant_id, platform, message_type, content, metadata,
			status, priority, scheduled_for, retry_count, max_retries, last_error
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, 'pending', $6, $7, 0, $8, '')
		RETURNING id, tenant_id, platform, message_type, content, metadata,
			status, priority, scheduled_for, retry_count, max_retries, last_error, processed_at`,
		item.TenantID, item.Platform, item.MessageType, item.Content, item.Metadata,
		item.Priority, item.ScheduledFor, item.MaxRetries)
	if err := row.Scan(&out.ID, &out.TenantID, &out.Platform, &out.MessageType, &out.Content,
		&out.Metadata, &out.Status, &out.Priority, &out.ScheduledFor, &out.RetryCount,
		&out.MaxRetries, &out.LastError, &out.ProcessedAt); err != nil {
		return models.MessageQueueItem{}, fmt.Errorf("store: enqueue message: %w", err)
	}
	return out, nil
}

// ClaimMessages returns pending/failed items whose scheduledFor has
// elapsed, ordered priority desc then scheduledFor asc (spec §4.5), and
// marks them processing so a second drainer pass does not redeliver them.
func (d *DB) ClaimMessages(ctx context.Context, platform models.Platform, limit int) ([]models.MessageQueueItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := d.QueryxContext(ctx, `
		UPDATE message_queue SET status = 'processing'
		WHERE id IN (
			SELECT id FROM message_queue
			WHERE platform = $1 AND status IN ('pending', 'failed') AND scheduled_for <= now()
			ORDER BY priority DESC, scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, platform, message_type, content, metadata,
			status, priority, scheduled_for, retry_count, max_retries, last_error, processed_at`,
		platform, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim messages: %w", err)
	}
	defer rows.Close()

	var out []models.MessageQueueItem
	for rows.Next() {
		var item models.MessageQueueItem
		if err := rows.Scan(&item.ID, &item.TenantID, &item.Platform, &item.MessageType,
			&item.Content, &item.Metadata, &item.Status, &item.Priority, &item.ScheduledFor,
			&item.RetryCount, &item.MaxRetries, &item.LastError, &item.ProcessedAt); err != nil {
			return nil, fmt.Errorf("store: scan claimed message: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CompleteMessage implements the retry/backoff contract from spec §4.5 and
// scenario S6: gaps of 2^retryCount * 1000ms for each of maxRetries
// attempts, terminal failed once retryCount exceeds maxRetries.
func (d *DB) CompleteMessage(ctx context.Context, id string, success bool, errMsg string) error {
	if success {
		_, err := d.ExecContext(ctx, `
			UPDATE message_queue SET status = 'completed', processed_at = now() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("store: complete message: %w", err)
		}
		return nil
	}

	var retryCount, maxRetries int
	row := d.QueryRowxContext(ctx, `
		UPDATE message_queue SET retry_count = retry_count + 1, last_error = $2
		WHERE id = $1 RETURNING retry_count, max_retries`, id, errMsg)
	if err := row.Scan(&retryCount, &maxRetries); err != nil {
		return fmt.Errorf("store: increment retry count: %w", err)
	}

	if retryCount > maxRetries {
		_, err := d.ExecContext(ctx, `UPDATE message_queue SET status = 'failed' WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("store: mark message failed: %w", err)
		}
		return nil
	}

	backoff := time.Duration(1<<uint(retryCount)) * time.Second
	_, err := d.ExecContext(ctx, `
		UPDATE message_queue SET status = 'pending', scheduled_for = now() + $2::interval WHERE id = $1`,
		id, backoff.String())
	if err != nil {
		return fmt.Errorf("store: reschedule message: %w", err)
	}
	return nil
}
