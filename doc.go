// Package roomcast provides the authorization-scoped distribution layer for a
// multi-room chat system: capability token issuance, channel-scoped fan-out of
// committed messages, resilient subscription clients, and presence-driven
// unread tracking.
//
// Works both as a library for embedding in your application AND as a standalone
// microservice with REST API.
//
// # Features
//
//   - Capability Tokens: signed, time-bounded JWTs enumerating exactly the
//     channels a subscriber may read (HS256, verifiable without callbacks)
//   - Two Scoping Strategies: explicit channel enumeration for bounded rooms,
//     private-inbox indirection for rooms with unbounded membership
//   - TTL Channel Cache with delete-on-write invalidation and fall-through on
//     cache failure
//   - At-Least-Once Fan-out: post-commit publish with outbox-backed retries
//     and exponential backoff (30s → 1m → 2m → 4m → 8m → 16m → 30m max)
//   - Delivery Failure Log automatically records publishes abandoned after 5
//     attempts, with statistics for monitoring
//   - Subscription Client with automatic reconnection, cursor resume, event
//     deduplication, and an explicit expired-authorization prompt
//   - Optimistic Send Reconciliation matching local renders against their
//     authoritative broadcast echoes
//   - Presence-Driven Unread Counts via read-cursor watermarks and indexed
//     range counting
//   - Domain-Driven Design with rich domain models containing business logic
//   - Repository Pattern for clean data access abstraction
//   - Options Pattern for modern Go API design
//   - Pluggable architecture: bring your own Logger, Notification system, Hub
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded Migrations for easy database setup
//   - Cloud Native: 12-factor app, ENV config, health checks
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
// Connect and create repositories:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/roomcast"
//	    "github.com/coregx/roomcast/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/roomcast?parseTime=true")
//	repos := relica.NewRepositories(db, "mysql")
//
// Issue capability tokens:
//
//	cache, _ := roomcast.NewTopicCache(
//	    roomcast.WithTopicCacheRepositories(repos.Membership, repos.Room),
//	    roomcast.WithTopicCacheLogger(logger),
//	)
//
//	authorizer, _ := roomcast.NewTopicAuthorizer(
//	    roomcast.WithChannelResolver(cache),
//	    roomcast.WithSigningKey(key),
//	    roomcast.WithAuthorizerLogger(logger),
//	)
//
//	token, _ := authorizer.Issue(ctx, subscriberID)
//
// Fan out committed messages:
//
//	fanout, _ := roomcast.NewFanoutPublisher(
//	    roomcast.WithFanoutRepositories(repos.Room, repos.Membership, repos.Outbox),
//	    roomcast.WithFanoutHub(hub),
//	    roomcast.WithFanoutLogger(logger),
//	)
//
//	// After the message transaction commits:
//	result, _ := fanout.Publish(ctx, msg)
//
// Run the retry worker:
//
//	worker, _ := roomcast.NewOutboxWorker(
//	    roomcast.WithWorkerRepositories(repos.Outbox, repos.Message, repos.DeliveryFailure),
//	    roomcast.WithHub(hub),
//	    roomcast.WithLogger(logger),
//	)
//	go worker.Run(ctx, 30*time.Second)
//
// # Option 2: As Standalone Service
//
// Run the standalone roomcast server and access the REST API at
// http://localhost:8080:
//
//	# Issue a capability token
//	curl -X POST http://localhost:8080/api/v1/tokens \
//	  -H "Content-Type: application/json" \
//	  -d '{"subscriberID":42}'
//
//	# Health check
//	curl http://localhost:8080/api/v1/health
//
// # Message Flow
//
//  1. COMMIT + FAN-OUT
//     Persistence collaborator commits message → calls FanoutPublisher
//     → bounded room: one event on the room channel
//     → unbounded room: one event per participant inbox channel
//     → outbox rows track each destination
//
//  2. WORKER (Background)
//     OutboxWorker → Find Pending/Retryable Items (batch, sequence order)
//     → Publish to hub
//     → On Success: Mark as PUBLISHED
//     → On Failure: Retry with exponential backoff
//     → After 5 failures: Record as DeliveryFailure
//
//  3. SUBSCRIBE
//     Client connects with capability token → hub verifies scope
//     → events streamed, deduplicated by event ID
//     → dropped connections resume from cursor; expired tokens prompt the user
//
// # Database Schema
//
// The library requires 6 database tables (created via embedded migrations):
//
//	roomcast_room              - Rooms with visibility mode
//	roomcast_membership        - Subscriber-room memberships (token scope source)
//	roomcast_message           - Committed messages with room-scoped sequences
//	roomcast_read_cursor       - Read watermarks and presence heartbeats
//	roomcast_outbox            - Publish outbox with retry state
//	roomcast_delivery_failure  - Abandoned publishes for manual replay
//
// Supports MySQL, PostgreSQL, and SQLite via Relica adapters.
// Table prefix can be customized (default: "roomcast_").
//
// # Examples
//
// See the examples/ directory for complete working examples.
//
// For detailed documentation, see README.md and pkg.go.dev.
package roomcast
