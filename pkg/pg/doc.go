// Package pg manages the PostgreSQL connection pool and schema migrations
// for the billing stores. Connection setup retries with a linearly growing
// delay so a service restart does not race the database coming up; schema
// migrations run through goose on top of the pgx pool.
package pg
