// Package enhance drives approved encounters through the enhancement
// pipeline: narrative rewrite, illustration generation, narration synthesis,
// and publish. A manager polls the work queue and processes one message at a
// time per worker; the queue's visibility timeout covers worker liveness, so
// a crashed worker's message is redelivered rather than lost.
package enhance
