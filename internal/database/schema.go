package database

// Statements are executed one by one so the DSN does not need
// multiStatements enabled.
func schemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255),
    subscription_end_date TIMESTAMP NULL DEFAULT NULL,
    trial_tasks_used INT NOT NULL DEFAULT 0,
    single_tasks_purchased INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS admins (
    user_id BIGINT PRIMARY KEY,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS pending_payments (
    invoice_id BIGINT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    tariff VARCHAR(16) NOT NULL,
    amount INT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
	}
}
