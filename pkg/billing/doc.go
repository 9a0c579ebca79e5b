// Package billing ingests provider webhook events and maintains each
// organization's subscription record.
//
// # Webhook Gate
//
// Every delivery passes through a fixed gate before it can touch state:
//
//  1. Signature: when a webhook secret is configured, the hex HMAC-SHA256
//     of the raw body must match the X-Stripe-Signature header. With no
//     secret configured, verification is skipped.
//  2. Decode: the body must be a JSON event envelope.
//  3. Idempotency key: the X-Stripe-Event-Id header wins, then the
//     payload's "id" field. A delivery with neither is rejected.
//  4. Replay check: a key already present in the billing_events ledger
//     short-circuits to a duplicate response, answered from the original
//     row. Replays never touch subscription state.
//  5. Apply: reconciliation and the ledger insert share one transaction,
//     so a delivery either fully applies or leaves no trace. Concurrent
//     deliveries racing on the same key degrade to a duplicate response
//     when the ledger insert loses.
//
// # Reconciliation
//
// Only customer.subscription.{created,updated,deleted} events mutate
// state, and only when their metadata names a known organization slug.
// Everything else is recorded in the ledger as a no-op. Recognized events
// are folded into a sparse patch: plan (first non-empty of plan.nickname,
// metadata plan, plan_name, normalized via NormalizePlan), status (via
// NormalizeStatus), provider refs and the period end. Fields the payload
// omits or that fail normalization never overwrite stored values.
//
// Subscriptions are created lazily on first read with the starter plan in
// trialing status, matching what registration provisions.
//
// # Archival
//
// Accepted payloads can be shipped to object storage after commit via an
// Archiver. Archival failures are logged, never returned, so provider
// retries are not triggered for deliveries that already applied.
package billing
