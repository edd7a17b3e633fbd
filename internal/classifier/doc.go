// Package classifier annotates message summaries with a category label
// and a priority score using an OpenAI-compatible chat completion API.
// Classification is best effort: any failure yields the fallback result
// instead of an error, so retrieval never breaks because the model is
// down.
package classifier
