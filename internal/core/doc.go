// Package core provides the business logic of the person import pipeline.
//
// It turns a decoded tabular file into normalized person records, lets an
// operator review and de-duplicate them, and commits them in two steps
// (preview, then confirm) against the directory backend. Nothing here knows
// about HTTP or the database; both are plugged in through interfaces.
//
// # Pipeline
//
// A [Session] moves through fixed phases:
//
//	upload -> map -> review -> preview -> confirm_ready -> done
//
//  1. [Session.Load] takes the decoded table and infers a [Mapping] with
//     [InferMapping].
//  2. [Session.ConfirmMapping] requires every required catalog field to be
//     mapped and runs [NormalizeTable], which may split multi-contact rows.
//  3. During review the operator edits, excludes or auto-excludes rows. Every
//     change reruns [RecomputeDedupeFlags] over the whole row set.
//  4. [Session.RunPreview] is refused while a blocking duplicate group exists.
//     The preview response sets a default [Action] per row.
//  5. [Session.Confirm] sends exactly the previewed rows, skipped ones
//     included, and stores the [ConfirmResult].
//
// Any edit after a preview drops the preview, so confirm always runs on the
// row set the backend last saw.
//
// # Backend Calls
//
// The backend is a [Matcher]. A session allows one call at a time and is
// left in its pre-call phase when a call fails. [Service] wraps the matcher
// with a [CallLimiter] shared by all sessions.
//
// # Row Issues
//
// Issues are tagged with the pass that produced them ([IssueSource]), so
// dedupe issues can be replaced without touching normalizer advisories. Only
// dedupe issues on email, ironworker number or phone block progress.
//
// # Error Handling
//
// Errors are wrapped sentinels. [MapError] turns any of them into a
// [UserMessage] with a support code for display.
package core
