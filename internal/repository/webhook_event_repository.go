package repository

import "database/sql"

// WebhookEventRepository records processed payment events so webhook
// retries and replays do not re-apply the same upgrade.
type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// MarkProcessed records the event id and reports whether this is the first
// time it has been seen. A false return means the event was already handled.
func (r *WebhookEventRepository) MarkProcessed(eventID string) (bool, error) {
	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO webhook_events (event_id) VALUES (?)
	`, eventID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Delete removes the event id so a later delivery is treated as new again.
// Used to release the claim when processing fails after MarkProcessed.
func (r *WebhookEventRepository) Delete(eventID string) error {
	_, err := r.db.Exec(`DELETE FROM webhook_events WHERE event_id = ?`, eventID)
	return err
}
