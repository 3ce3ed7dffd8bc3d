// Package planner turns report requests into SQL.
//
// A request names a base entity and a list of column paths. Each path is
// resolved against the schema registry in a single pass: relationship hops are
// looked up in the alias map, every hop is checked against the join whitelist
// and recorded in a JoinAccumulator, and the final segment must be a column of
// the entity reached. The accumulated joins then become one SELECT with a fixed
// row cap.
package planner
