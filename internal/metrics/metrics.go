// Package metrics exposes counters for the reservation protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsGranted counts successful reserve calls.
	ReservationsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quota",
		Name:      "reservations_granted_total",
		Help:      "Number of reserve calls that produced reservations.",
	})
	// ReservationsDenied counts reserve calls denied over quota.
	ReservationsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quota",
		Name:      "reservations_denied_total",
		Help:      "Number of reserve calls denied, by resource.",
	}, []string{"resource"})
	// ReservationsCommitted counts finalized reservations.
	ReservationsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quota",
		Name:      "reservations_committed_total",
		Help:      "Number of reservations committed.",
	})
	// ReservationsRolledBack counts released reservations.
	ReservationsRolledBack = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quota",
		Name:      "reservations_rolled_back_total",
		Help:      "Number of reservations rolled back.",
	})
	// ReservationsExpired counts reservations released by the expiry sweep.
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quota",
		Name:      "reservations_expired_total",
		Help:      "Number of reservations released by the expiry sweep.",
	})
)
