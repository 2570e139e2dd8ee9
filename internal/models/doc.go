// Package models defines domain entities and persistence interfaces for the stem extraction pipeline.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs passed between pipeline stages
//   - [Track] : Canonical song metadata from the catalog
//   - [Candidate] : A source search result that may correspond to a Track
//   - [MatchResult] : A scored candidate with its acceptance verdict
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [PersistedTrack] : Resolved tracks with their accepted source match
//
// All persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
