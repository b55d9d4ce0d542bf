// Package app composes the cooperative platform's services.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	├── storage/            # Store interfaces, memory/ and postgres/ implementations
//	├── services/           # Cooperatives, plant configs, plant groups, vendors
//	│   └── flagscope/      # Shared exclusive-flag plumbing (retry, cache, metrics)
//	├── txn/                # Lock-timeout retry runner
//	├── cache/              # Optional flag-holder cache
//	├── validation/         # Request validation
//	├── httpapi/            # HTTP handlers, routing and middleware
//	├── system/             # Lifecycle manager and scheduled housekeeping
//	├── metrics/            # Prometheus collectors
//	└── runtime/            # Process wiring from configuration
//
// # Dependency Direction
//
//	cmd/coopd/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app/httpapi ──► internal/app (composition)
//	                                                        │
//	                                                        ├──► services/
//	                                                        └──► storage/
//
// # Adding a Flag-Bearing Entity
//
//  1. Create the model in internal/app/domain/<entity>/
//  2. Add the store interface to internal/app/storage/interfaces.go
//  3. Implement it in storage/memory (flagTable) and storage/postgres (flagTable)
//  4. Add a migration with the partial unique index on the scope
//  5. Create the service on top of flagscope.Mutate and flagscope.Holder
//  6. Wire it here and mount its routes in httpapi
package app
