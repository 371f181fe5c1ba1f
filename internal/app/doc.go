// Package app composes the ledger engine.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── auth/               # Identities, the admin gate and JWT resolution
//	├── core/service/       # Shared error kinds and codes
//	├── domain/             # Pure data: users, entries, deposits, withdrawals,
//	│                       # plans, investments, reconciliation items
//	├── events/             # Post-commit event bus and notifiers
//	├── metrics/            # Prometheus collectors
//	├── runtime/            # Infrastructure wiring and the ops listener
//	├── services/           # Workflows: ledger, deposits, withdrawals,
//	│                       # investments, referral, returns, statemachine
//	├── storage/            # Store interfaces, memory and postgres backends
//	└── system/             # Ordered start/stop of background services
//
// # Consistency Model
//
// Every workflow runs inside one storage scope. A scope either commits all of
// its balance changes, ledger entries and status changes or none of them.
// Events are collected during the scope and handed to the bus only after the
// commit succeeds, so a rolled back operation never notifies anyone.
//
// Referral bonuses are paid after the investment approval commits. A failed
// payment is queued for the referral reconciler, which retries it until the
// idempotency key shows it settled.
//
// # Dependency Direction
//
//	cmd/ledgerd/
//	      │
//	      ▼
//	internal/app/runtime (postgres, redis, jwt, http)
//	      │
//	      ▼
//	internal/app (composition)
//	      │
//	      ├──► services/ (business rules)
//	      │         │
//	      │         └──► storage/ (interfaces) ◄── memory/, postgres/
//	      │
//	      └──► events/, system/, metrics/
package app
