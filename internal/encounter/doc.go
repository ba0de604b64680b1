// Package encounter defines the central Encounter aggregate, its lifecycle
// statuses, and the legal status transitions. The transition table is the
// single source of truth; enforcement happens at each entry point (moderation,
// orchestrator, public fetch) via conditional store updates.
package encounter
