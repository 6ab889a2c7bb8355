// Package analysis runs the four content-analysis sub-stages: broad
// pass-1 candidate extraction, pass-2 quality scoring and deterministic
// filtering, narrative script generation, and rebuttal verification. Each
// sub-stage caches its artifact so interrupted runs resume from the first
// missing output.
package analysis
