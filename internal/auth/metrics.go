// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeSuccess labels operations that returned no error. Failures are labelled
// with their error code, or "error" when the error carries no public code.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Operations is the counter for auth operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hearth_auth_operations_total",
		Help: "Total number of auth operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// OperationDuration is the histogram for auth operation duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hearth_auth_operation_duration_seconds",
		Help:    "Auth operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(OperationDuration)
}

// recordOperation counts one operation and observes its duration.
func recordOperation(operation string, started time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = ErrorCode(err)
		if !isPublicCode(outcome) {
			outcome = OutcomeError
		}
	}
	Operations.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func isPublicCode(code string) bool {
	switch code {
	case CodeMissingFields, CodeTermsNotAccepted, CodeInvalidEmail, CodeWeakPassword,
		CodeEmailExists, CodeRateLimited, CodeInvalidCredentials, CodeInvalidToken,
		CodeTokenExpired, CodeUserNotFound, CodeAlreadyVerified, CodeInvalidInviteCode:
		return true
	default:
		return false
	}
}
