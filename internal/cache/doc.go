// Package cache provides the size-bounded tiers that hold pre-mastered audio
// chunks. Each tier has its own lock and evicts the least likely, least
// recently used chunks first.
package cache
