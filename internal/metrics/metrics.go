// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttendanceOpened counts opened attendance records.
	AttendanceOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofmeet_attendance_opened_total",
		Help: "Attendance records opened.",
	})

	// AttendanceClosed counts closed records by terminal status.
	AttendanceClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofmeet_attendance_closed_total",
		Help: "Attendance records closed, by terminal status.",
	}, []string{"status"})

	// CardsIssued counts issued court cards.
	CardsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofmeet_cards_issued_total",
		Help: "Court cards issued.",
	})

	// Verifications counts verification calls by outcome.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofmeet_verifications_total",
		Help: "Card verifications, by outcome.",
	}, []string{"result"})
)
