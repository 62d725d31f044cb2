// Package retry provides the shared execution engine that wraps every
// Google API call with bounded retries, exponential backoff with jitter,
// and two independent timeout ceilings (per attempt and for the whole
// call). Failures are classified through the errdefs taxonomy before a
// retry decision is made.
package retry
