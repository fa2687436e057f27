// Package metrics holds the Prometheus collectors for the fan-out layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BrokerPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketlive_broker_publishes_total",
		Help: "Events published to the channel broker, by event name.",
	}, []string{"event"})

	BrokerDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketlive_broker_deliveries_total",
		Help: "Events queued to a connection.",
	})

	BrokerDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketlive_broker_dropped_total",
		Help: "Events dropped because a connection's outbound queue was full.",
	})

	BrokerEmptyRooms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketlive_broker_empty_room_publishes_total",
		Help: "Publishes to rooms with no members.",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketlive_broker_connections",
		Help: "Currently connected websocket clients.",
	})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketlive_notifications_created_total",
		Help: "Notification rows created, by type.",
	}, []string{"type"})

	DomainEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketlive_domain_events_consumed_total",
		Help: "Domain events consumed from Kafka, by topic and outcome.",
	}, []string{"topic", "outcome"})
)
