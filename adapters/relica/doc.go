// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package provides production-ready implementations of all roomcast repository interfaces:
//   - RoomRepository
//   - MembershipRepository
//   - MessageRepository
//   - ReadCursorRepository
//   - OutboxRepository
//   - DeliveryFailureRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/roomcast"
//	    "github.com/coregx/roomcast/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/roomcast_db?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create repositories (driverName should be "mysql", "postgres", or "sqlite3")
//	repos := relica.NewRepositories(db, "mysql")
//
//	// Create services
//	worker, err := roomcast.NewOutboxWorker(
//	    roomcast.WithWorkerRepositories(repos.Outbox, repos.Message, repos.DeliveryFailure),
//	    roomcast.WithHub(hub),
//	    roomcast.WithLogger(logger),
//	)
package relica
