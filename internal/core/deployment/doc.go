// Package deployment provides pure functions for diagram deployment planning.
//
// This package contains the functional core of the deployment ledger. All
// functions are pure (no I/O, no side effects): they take the current state of
// a site's diagrams and return the state that must be written, together with
// the audit records to append.
//
// # Functions
//
//   - PlanDeploy: promote a diagram and demote the site's previous live one
//   - SelectRollbackTarget: pick the last version that was live before the current one
//   - PlanRollback: re-promote a historical version
//   - Summarize: per-status counts of a site's diagrams
//
// # Usage
//
// The imperative shell (internal/shell/ledger) loads state inside a store
// transaction, plans with these functions, then writes the plan back in the
// same transaction.
//
//	plan, err := deployment.PlanDeploy(*target, currentLive, actor, notes, now)
//	if err != nil {
//	    return err
//	}
//	for _, d := range plan.Writes() {
//	    tx.UpdateDiagram(ctx, &d)
//	}
package deployment
