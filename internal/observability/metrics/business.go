package metrics

import "time"

// RecordRun records a finished pipeline run.
func RecordRun(newsletter, status string, duration time.Duration) {
	RunsTotal.WithLabelValues(newsletter, status).Inc()
	RunDuration.WithLabelValues(newsletter).Observe(duration.Seconds())
}

// RecordFeedFetch records one feed fetch attempt.
// Result should be "ok" or "error".
func RecordFeedFetch(ok bool, duration time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	FeedFetchesTotal.WithLabelValues(result).Inc()
	FeedFetchDuration.Observe(duration.Seconds())
}

// RecordSelection records how many articles a run selected.
func RecordSelection(count int) {
	ArticlesSelected.Observe(float64(count))
}

// RecordCascadeAttempt records one provider attempt in the cascade.
// Result should be "success" or "failure".
func RecordCascadeAttempt(provider string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	CascadeAttemptsTotal.WithLabelValues(provider, result).Inc()
}

// RecordAITokens records token usage reported by a provider.
func RecordAITokens(provider string, tokensIn, tokensOut int) {
	if tokensIn > 0 {
		AITokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		AITokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}
}

// RecordEmailSend records a delivery attempt through a transport.
func RecordEmailSend(transport string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	EmailSendsTotal.WithLabelValues(transport, result).Inc()
}

// RecordQuoteLookup records a market-data lookup result.
func RecordQuoteLookup(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	QuoteLookupsTotal.WithLabelValues(result).Inc()
}
