package database

// Schema and query code are generated from the migrations:
//
//	go generate ./internal/database
//
// generate_schema applies every migration to an in-memory database and
// dumps the result to sqlc/schema.sql; sqlc then regenerates the query
// package from sqlc/queries/*.sql.

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
