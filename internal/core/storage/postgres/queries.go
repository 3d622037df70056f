package postgres

// SQL queries for raw record storage with tenant scoping.

const (
	// querySaveBooking inserts a booking with tenant idempotency.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for duplicates.
	querySaveBooking = `
		INSERT INTO bookings (
			id, tenant_id, status, party_size, booking_time, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO NOTHING
		RETURNING id
	`

	// querySaveCateringOrder inserts a catering order with tenant idempotency.
	querySaveCateringOrder = `
		INSERT INTO catering_orders (
			id, tenant_id, status, total_amount, event_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO NOTHING
		RETURNING id
	`

	// queryBookingsInWindow fetches one tenant's bookings created inside a
	// half-open [from, to) window. Served by the (tenant_id, created_at) index.
	queryBookingsInWindow = `
		SELECT
			id, tenant_id, status, party_size, booking_time, created_at
		FROM bookings
		WHERE tenant_id = $1
		  AND created_at >= $2
		  AND created_at < $3
		ORDER BY created_at ASC
	`

	// queryCateringOrdersInWindow fetches one tenant's catering orders
	// created inside a half-open [from, to) window.
	queryCateringOrdersInWindow = `
		SELECT
			id, tenant_id, status, total_amount, event_date, created_at
		FROM catering_orders
		WHERE tenant_id = $1
		  AND created_at >= $2
		  AND created_at < $3
		ORDER BY created_at ASC
	`
)
