// Package lineupescrow implements blind lineup exchange for league match
// operations: captains commit lineups into escrow and neither side sees the
// other's until both have submitted.
//
// The module keeps domain/application logic decoupled from runtime/platform
// concerns through ports and adapter composition.
package lineupescrow
